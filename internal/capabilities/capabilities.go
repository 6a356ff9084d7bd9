// Package capabilities derives the layer-metadata model behind the
// TMS/WMTS/WMS capabilities documents (spec.md section 4, C8) from the
// registry's post-Init source configurations. XML templating for each
// protocol's capabilities document is the dispatcher's job (spec.md
// section 2 calls it "mechanical templating once the catalog is known");
// this package only builds the catalog.
package capabilities

import (
	"sort"

	"github.com/joeblew999/tileserver/internal/mercator"
	"github.com/joeblew999/tileserver/internal/sourcecfg"
	"github.com/joeblew999/tileserver/internal/tilesource"
)

// Layer is one entry in the derived capabilities catalog.
type Layer struct {
	ID          string
	Title       string
	Abstract    string
	Format      string
	ContentType string
	MinZoom     uint32
	MaxZoom     uint32
	SRS         string
	Bounds      mercator.GeographicalBounds
	HasBounds   bool
}

// Model is the full catalog served by GetCapabilities on every protocol.
type Model struct {
	Title    string
	Abstract string
	Keywords []string
	Layers   []Layer
}

// RegistryReader is the subset of tilesource.Registry this package needs.
type RegistryReader interface {
	IDs() []string
	Get(id string) (tilesource.Source, bool)
}

// Build derives a Model from every source in reg, sorted by ID for a
// stable, deterministic document (spec.md section 8's "GetMap idempotence"
// expectation extends naturally to capabilities output).
func Build(reg RegistryReader, title, abstract string, keywords []string) Model {
	m := Model{Title: title, Abstract: abstract, Keywords: keywords}

	ids := reg.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		src, ok := reg.Get(id)
		if !ok {
			continue
		}
		m.Layers = append(m.Layers, layerFromConfig(src.Configuration()))
	}
	return m
}

func layerFromConfig(cfg sourcecfg.SourceConfig) Layer {
	min, max := cfg.ZoomRange()
	srs := cfg.SRS
	if srs == "" {
		srs = "EPSG:3857"
	}
	l := Layer{
		ID:          cfg.ID,
		Title:       orTitle(cfg.Title, cfg.ID),
		Abstract:    cfg.Abstract,
		Format:      cfg.Format,
		ContentType: cfg.ContentType,
		MinZoom:     min,
		MaxZoom:     max,
		SRS:         srs,
	}
	if cfg.Bounds != nil {
		l.Bounds = *cfg.Bounds
		l.HasBounds = true
	}
	return l
}

func orTitle(title, id string) string {
	if title != "" {
		return title
	}
	return id
}

// FilterBySRS returns only the layers advertising srs, for protocols
// (like WMS 1.3.0's CRS parameter) that reject layers outside a requested
// reference system.
func (m Model) FilterBySRS(srs string) []Layer {
	var out []Layer
	for _, l := range m.Layers {
		if l.SRS == srs {
			out = append(out, l)
		}
	}
	return out
}

// Layer looks up a single layer by ID.
func (m Model) Layer(id string) (Layer, bool) {
	for _, l := range m.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}
