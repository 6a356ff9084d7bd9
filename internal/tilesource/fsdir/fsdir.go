// Package fsdir implements the local filesystem tree tile source (spec.md
// section 4.3, C4b): a path template containing {z}/{x}/{y}, read straight
// off disk.
//
// This is deliberately stdlib-only (os, path/filepath, strings): no
// third-party library in the retrieved corpus does anything more for "read
// a file whose name is a template substitution" than os.Open, so reaching
// for one here would be invention, not idiom (see DESIGN.md).
package fsdir

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joeblew999/tileserver/internal/mercator"
	"github.com/joeblew999/tileserver/internal/sourcecfg"
	"github.com/joeblew999/tileserver/internal/tilesource"
)

// Source reads tiles from a local directory tree addressed by a
// {z}/{x}/{y} path template.
type Source struct {
	mu  sync.RWMutex
	cfg sourcecfg.SourceConfig
}

// New constructs an uninitialized filesystem source for cfg.
func New(cfg sourcecfg.SourceConfig) *Source {
	return &Source{cfg: cfg}
}

// Init validates the path template contains the required placeholders.
func (s *Source) Init(ctx context.Context) error {
	if s.cfg.Location == "" {
		return tilesource.ConfigError("fsdir.Init", fmt.Errorf("empty location for source %q", s.cfg.ID))
	}
	lower := strings.ToLower(s.cfg.Location)
	for _, ph := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(lower, ph) {
			return tilesource.ConfigError("fsdir.Init", fmt.Errorf("location %q missing placeholder %s", s.cfg.Location, ph))
		}
	}
	return nil
}

func (s *Source) path(x, y, z uint32) string {
	s.mu.RLock()
	loc := s.cfg.Location
	tms := s.cfg.TMS
	s.mu.RUnlock()

	row := y
	if tms {
		row = mercator.FlipY(y, z)
	}
	p := loc
	p = replaceCaseInsensitive(p, "{z}", strconv.FormatUint(uint64(z), 10))
	p = replaceCaseInsensitive(p, "{x}", strconv.FormatUint(uint64(x), 10))
	p = replaceCaseInsensitive(p, "{y}", strconv.FormatUint(uint64(row), 10))
	return p
}

func replaceCaseInsensitive(s, old, new string) string {
	var b strings.Builder
	lowerS, lowerOld := strings.ToLower(s), strings.ToLower(old)
	for {
		i := strings.Index(lowerS, lowerOld)
		if i < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:i])
		b.WriteString(new)
		s = s[i+len(old):]
		lowerS = lowerS[i+len(old):]
	}
	return b.String()
}

// GetTile reads the tile file. A missing file is a legitimate absence; any
// other I/O error is surfaced.
func (s *Source) GetTile(ctx context.Context, x, y, z uint32) ([]byte, bool, error) {
	min, max := s.Configuration().ZoomRange()
	if z < min || z > max {
		return nil, false, nil
	}
	data, err := os.ReadFile(s.path(x, y, z))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, tilesource.BackendError("fsdir.GetTile", err)
	}
	return data, true, nil
}

// Configuration returns the source record.
func (s *Source) Configuration() sourcecfg.SourceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

var _ tilesource.Source = (*Source)(nil)
