// Package server wires the tile-source registry into the HTTP surface
// (spec.md section 6, C9): one *http.ServeMux carrying both the Huma
// admin API and the raw TMS/XYZ/WMTS/WMS byte-serving routes.
//
// Adapted from the teacher's internal/server/server.go: same
// mux-plus-humago-adapter shape, same mixed registration of Huma routes
// and plain mux.HandleFunc routes, now serving tile protocols instead of
// a layer/source/tile editor CRUD API.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/tileserver/internal/adminapi"
	"github.com/joeblew999/tileserver/internal/capabilities"
	"github.com/joeblew999/tileserver/internal/config"
	"github.com/joeblew999/tileserver/internal/duckdbconn"
	"github.com/joeblew999/tileserver/internal/logging"
	"github.com/joeblew999/tileserver/internal/tilesource"
	"github.com/joeblew999/tileserver/internal/tilesource/httptile"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	// ConfigFile is the path to the JSON configuration file (spec.md
	// section 6's "Configuration file (JSON)").
	ConfigFile string
	// StrictSources aborts startup on any BackendInitError instead of
	// skipping the failing source; spec.md section 7's per-source
	// lenient/strict policy.
	StrictSources bool
}

// Server is the tile server's HTTP handler.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	humaAPI  huma.API
	log      *logging.Logger
	registry *tilesource.Registry
	caps     capabilities.Model
	service  config.Service
	db       *sql.DB
}

// New builds a Server: loads cfg.ConfigFile, constructs and initializes
// every configured source, and registers all routes.
func New(cfg Config) (*Server, error) {
	log := logging.New("tileserver", logging.LevelInfo)

	file, err := config.Load(cfg.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	db, err := duckdbconn.Get(duckdbconn.Config{DataDir: cfg.DataDir, DBName: "tileserver"})
	if err != nil {
		log.Warn("duckdb unavailable, postgis sources will fail init: %v", err)
	}

	httpClient := httptile.NewClient()
	sources := make(map[string]tilesource.Source, len(file.Sources))
	for _, sc := range file.Sources {
		src, err := buildSource(sc, httpClient, db)
		if err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
		sources[sc.ID] = src
	}

	registry, initErrs := tilesource.NewRegistry(context.Background(), sources, !cfg.StrictSources)
	for _, e := range initErrs {
		log.Warn("source init failed: %v", e)
	}
	if cfg.StrictSources && len(initErrs) > 0 {
		return nil, fmt.Errorf("server: %d source(s) failed to initialize: %v", len(initErrs), initErrs[0])
	}

	mux := http.NewServeMux()
	humaConfig := huma.DefaultConfig(orDefault(file.Service.Title, "tileserver"), "1.0.0")
	humaConfig.Info.Description = orDefault(file.Service.Abstract, "Tile map server exposing TMS, WMTS, and WMS.")
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		cfg:      cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		log:      log,
		registry: registry,
		service:  file.Service,
		db:       db,
	}
	s.caps = capabilities.Build(registry, file.Service.Title, file.Service.Abstract, file.Service.Keywords)
	s.routes()
	return s, nil
}

func orDefault(s, d string) string {
	if s == "" {
		return d
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI exposes the generated spec, used by the `spec` CLI subcommand.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close releases server resources.
func (s *Server) Close() error {
	return duckdbconn.Close()
}

func (s *Server) routes() {
	adminapi.RegisterRoutes(s.humaAPI, &adminapi.Services{
		Registry: s.registry,
		Caps:     &s.caps,
	})

	s.mux.HandleFunc("/tms/1.0.0", s.handleTMSService)
	s.mux.HandleFunc("/tms/1.0.0/", s.handleTMS)
	s.mux.HandleFunc("/xyz/", s.handleXYZ)
	s.mux.HandleFunc("/wmts", s.handleWMTSKVP)
	s.mux.HandleFunc("/wmts/tile/1.0.0/", s.handleWMTSRest)
	s.mux.HandleFunc("/wms", s.handleWMS)

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"service":%q,"status":"running"}`, s.service.Title)
}
