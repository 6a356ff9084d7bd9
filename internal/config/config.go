// Package config loads the tile server's JSON configuration file (spec.md
// section 6): top-level Kestrel/Service/Sources blocks.
//
// JSON decoding uses goccy/go-json rather than encoding/json, matching the
// drop-in-faster-stdlib-replacement pattern the rest of this corpus's huma
// stack already favors for request/response bodies.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/joeblew999/tileserver/internal/sourcecfg"
)

// Kestrel mirrors the optional ASP.NET-style listener block some of the
// spec's reference deployments carry. It is decoded but not used: the
// listen address always comes from the CLI flags.
type Kestrel struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Service holds server-wide, non-source settings.
type Service struct {
	Title        string   `json:"title"`
	Abstract     string   `json:"abstract"`
	Keywords     []string `json:"keywords"`
	JpegQuality  int      `json:"jpegQuality"`
	StrictLayers bool     `json:"strictLayers"`
}

// File is the full on-disk configuration document.
type File struct {
	Kestrel *Kestrel                  `json:"kestrel,omitempty"`
	Service Service                   `json:"service"`
	Sources []sourcecfg.SourceConfig  `json:"sources"`
}

// Load reads and decodes the config file at path, filling in defaults for
// Service fields left unset.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if f.Service.JpegQuality <= 0 {
		f.Service.JpegQuality = 85
	}
	if f.Service.Title == "" {
		f.Service.Title = "tileserver"
	}
	for i := range f.Sources {
		if err := f.Sources[i].Validate(); err != nil {
			return nil, fmt.Errorf("config: source %q: %w", f.Sources[i].ID, err)
		}
	}
	return &f, nil
}
