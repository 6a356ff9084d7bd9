// Package adminapi exposes a read-only Huma JSON API alongside the raw
// tile protocol routes (spec.md section 6): health, the registered source
// list, and the derived capabilities catalog.
//
// Adapted from the teacher's internal/api/routes.go: same
// Services-holds-dependencies / APIHandler-with-Register*-methods shape,
// now read-only since this server's layer catalog comes from the JSON
// config file rather than a CRUD-managed store.
package adminapi

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/tileserver/internal/capabilities"
	"github.com/joeblew999/tileserver/internal/tilesource"
)

// Services holds the dependencies adminapi handlers read from.
type Services struct {
	Registry *tilesource.Registry
	Caps     *capabilities.Model
}

// HealthBody is the /health response.
type HealthBody struct {
	Status string `json:"status" doc:"Health status" example:"ok"`
}

// SourceBody describes one registered source's wire-visible configuration.
type SourceBody struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Format      string `json:"format"`
	ContentType string `json:"contentType"`
}

// LayerBody is one entry of the derived capabilities catalog.
type LayerBody struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	SRS      string `json:"srs"`
	MinZoom  uint32 `json:"minZoom"`
	MaxZoom  uint32 `json:"maxZoom"`
}

// CapabilitiesBody is the JSON rendering of the derived catalog, for
// clients that would rather not parse the WMS/WMTS/TMS XML documents.
type CapabilitiesBody struct {
	Title    string      `json:"title"`
	Abstract string      `json:"abstract"`
	Layers   []LayerBody `json:"layers"`
}

// APIHandler holds all adminapi handlers. Each Register* method is called
// explicitly by RegisterRoutes.
type APIHandler struct {
	svc *Services
}

// NewAPIHandler builds a handler bound to svc.
func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes wires every adminapi route onto api. Kept as a package
// function (rather than relying on huma.AutoRegister reflection) since the
// route set is small and fixed.
func RegisterRoutes(api huma.API, svc *Services) {
	h := NewAPIHandler(svc)
	h.RegisterHealth(api)
	h.RegisterSources(api)
	h.RegisterCapabilities(api)
}

// RegisterHealth registers the health check route.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterSources registers the source listing route.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// RegisterCapabilities registers the JSON capabilities route.
func (h *APIHandler) RegisterCapabilities(api huma.API) {
	huma.Get(api, "/api/v1/capabilities", h.GetCapabilities, huma.OperationTags("capabilities"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok"}}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []SourceBody }, error) {
	out := struct{ Body []SourceBody }{}
	if h.svc == nil || h.svc.Registry == nil {
		return &out, nil
	}
	for _, id := range h.svc.Registry.IDs() {
		src, ok := h.svc.Registry.Get(id)
		if !ok {
			continue
		}
		cfg := src.Configuration()
		out.Body = append(out.Body, SourceBody{
			ID:          cfg.ID,
			Type:        string(cfg.Type),
			Format:      cfg.Format,
			ContentType: cfg.ContentType,
		})
	}
	return &out, nil
}

func (h *APIHandler) GetCapabilities(ctx context.Context, input *struct{}) (*struct{ Body CapabilitiesBody }, error) {
	if h.svc == nil || h.svc.Caps == nil {
		return &struct{ Body CapabilitiesBody }{}, nil
	}
	body := CapabilitiesBody{Title: h.svc.Caps.Title, Abstract: h.svc.Caps.Abstract}
	for _, l := range h.svc.Caps.Layers {
		body.Layers = append(body.Layers, LayerBody{
			ID: l.ID, Title: l.Title, Abstract: l.Abstract, SRS: l.SRS,
			MinZoom: l.MinZoom, MaxZoom: l.MaxZoom,
		})
	}
	return &struct{ Body CapabilitiesBody }{Body: body}, nil
}
