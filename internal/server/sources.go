package server

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/joeblew999/tileserver/internal/cache"
	"github.com/joeblew999/tileserver/internal/sourcecfg"
	"github.com/joeblew999/tileserver/internal/tilesource"
	"github.com/joeblew999/tileserver/internal/tilesource/duckvector"
	"github.com/joeblew999/tileserver/internal/tilesource/fsdir"
	"github.com/joeblew999/tileserver/internal/tilesource/geotiff"
	"github.com/joeblew999/tileserver/internal/tilesource/httptile"
	"github.com/joeblew999/tileserver/internal/tilesource/mbtiles"
	"github.com/joeblew999/tileserver/internal/tilesource/wms"
	"github.com/joeblew999/tileserver/internal/tilesource/wmts"
)

// buildSource constructs the uninitialized backend for cfg, then wraps it
// with a read-through cache if cfg.Cache is set (spec.md section 4.4).
// httpClient is the single pooled client shared across every HTTP-backed
// source (spec.md section 5).
func buildSource(cfg sourcecfg.SourceConfig, httpClient *http.Client, duckDB *sql.DB) (tilesource.Source, error) {
	var src tilesource.Source
	switch cfg.Type {
	case sourcecfg.TypeMBTiles:
		src = mbtiles.New(cfg)
	case sourcecfg.TypeFile:
		src = fsdir.New(cfg)
	case sourcecfg.TypeXYZ, sourcecfg.TypeTMS:
		src = httptile.New(cfg, httpClient)
	case sourcecfg.TypeWMTS:
		src = wmts.New(cfg, httpClient)
	case sourcecfg.TypeWMS:
		src = wms.New(cfg, httpClient)
	case sourcecfg.TypePostGIS:
		src = duckvector.New(cfg, duckDB)
	case sourcecfg.TypeGeoTIFF:
		src = geotiff.New(cfg)
	default:
		return nil, fmt.Errorf("server: unrecognized source type %q for %q", cfg.Type, cfg.ID)
	}

	if cfg.Cache == nil {
		return src, nil
	}
	return cache.New(src, cfg.Cache.DBFile)
}
