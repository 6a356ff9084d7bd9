// Package sourcecfg is the typed description of a configured tile source
// and its caching policy (spec.md section 3, "Source configuration").
//
// The struct-tag style (doc/example/default consumed by Huma for
// /openapi.json and by the admin API) is carried over verbatim from the
// teacher's service.LayerConfig.
package sourcecfg

import (
	"fmt"

	"github.com/joeblew999/tileserver/internal/mercator"
)

// Type enumerates the recognized source backends.
type Type string

const (
	TypeMBTiles Type = "mbtiles"
	TypeFile    Type = "file"
	TypeXYZ     Type = "xyz"
	TypeTMS     Type = "tms"
	TypeWMTS    Type = "wmts"
	TypeWMS     Type = "wms"
	TypePostGIS Type = "postgis" // backed by DuckDB's spatial extension, see DESIGN.md
	TypeGeoTIFF Type = "geotiff"
)

// CacheConfig wraps a source with a read-through MBTiles cache.
type CacheConfig struct {
	Type   string `json:"type" enum:"mbtiles" doc:"Cache backend type" example:"mbtiles"`
	DBFile string `json:"dbfile" required:"true" doc:"Path to the cache MBTiles file" example:"/data/cache/remote.mbtiles"`
}

// PostGIS holds the backend-specific fields for a postgis/duckvector source.
type PostGIS struct {
	Table    string   `json:"table,omitempty" doc:"Source table name" example:"buildings"`
	Geometry string   `json:"geometry,omitempty" default:"geom" doc:"Geometry column name"`
	Fields   []string `json:"fields,omitempty" doc:"Non-geometry columns to include as MVT feature properties"`
	Layer    string   `json:"layer,omitempty" doc:"MVT layer name" default:"default"`
	Extent   int      `json:"extent,omitempty" default:"4096" doc:"MVT tile extent"`
}

// SourceConfig is the tagged record describing one configured source.
//
// After backend initialization the record is re-emitted (see Init in
// internal/tilesource) with inferred fields (Format, ContentType,
// MinZoom/MaxZoom, Bounds, SRS) filled in from the backend itself.
type SourceConfig struct {
	ID          string  `json:"id" required:"true" minLength:"1" doc:"Unique source identifier" example:"world"`
	Type        Type    `json:"type" required:"true" enum:"mbtiles,file,xyz,tms,wmts,wms,postgis,geotiff" doc:"Backend type"`
	Title       string  `json:"title,omitempty" doc:"Human-readable title"`
	Abstract    string  `json:"abstract,omitempty" doc:"Longer description"`
	Location    string  `json:"location" required:"true" doc:"Local path or URL template, backend-dependent"`
	Format      string  `json:"format,omitempty" doc:"Tile content format" example:"png" enum:"png,jpg,webp,pbf,tiff,"`
	ContentType string  `json:"contentType,omitempty" doc:"HTTP content type override"`
	MinZoom     *int    `json:"minZoom,omitempty" doc:"Minimum zoom this source serves"`
	MaxZoom     *int    `json:"maxZoom,omitempty" doc:"Maximum zoom this source serves"`
	SRS         string  `json:"srs,omitempty" default:"EPSG:3857" doc:"Spatial reference of served tiles"`
	TMS         bool    `json:"tms,omitempty" doc:"True if Y addressing follows the TMS (south-origin) convention"`
	Cache       *CacheConfig `json:"cache,omitempty" doc:"Optional read-through MBTiles cache"`

	// Backend-specific extras.
	CapabilitiesURL string   `json:"capabilitiesurl,omitempty" doc:"WMTS capabilities document to validate against at init"`
	Transparent     bool     `json:"transparent,omitempty" doc:"Request TRANSPARENT=TRUE from a remote WMS backend"`
	RequestTimeout  int      `json:"requestTimeout,omitempty" default:"15" doc:"Per-request timeout in seconds for HTTP-backed sources"`
	PostGIS         *PostGIS `json:"postgis,omitempty" doc:"Fields for postgis/duckvector sources"`

	// Derived at Init, not user-supplied.
	Bounds *mercator.GeographicalBounds `json:"geographicalBounds,omitempty" doc:"Derived geographical bounds" readOnly:"true"`
}

// Validate enforces the static invariants from spec.md section 3 that do
// not require touching the backend.
func (c SourceConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("sourcecfg: id must not be empty")
	}
	if c.Location == "" {
		return fmt.Errorf("sourcecfg: location must not be empty for source %q", c.ID)
	}
	switch c.Type {
	case TypeMBTiles, TypeFile, TypeXYZ, TypeTMS, TypeWMTS, TypeWMS, TypePostGIS, TypeGeoTIFF:
	default:
		return fmt.Errorf("sourcecfg: unrecognized type %q for source %q", c.Type, c.ID)
	}
	if c.Cache != nil && c.Cache.DBFile == "" {
		return fmt.Errorf("sourcecfg: cache.dbfile must not be empty for source %q", c.ID)
	}
	return nil
}

// ZoomRange returns the effective min/max zoom, defaulting to the full
// valid range when unset.
func (c SourceConfig) ZoomRange() (min, max uint32) {
	min, max = mercator.MinZoom, mercator.MaxZoom
	if c.MinZoom != nil {
		min = uint32(*c.MinZoom)
	}
	if c.MaxZoom != nil {
		max = uint32(*c.MaxZoom)
	}
	return min, max
}
