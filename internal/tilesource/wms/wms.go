// Package wms implements the remote WMS tile source (spec.md section 4.3,
// C4e): for each requested tile, synthesize a GetMap call against the
// tile's own EPSG:3857 bounds and WIDTH=HEIGHT=256.
//
// KVP construction/parsing conventions are grounded in
// blockarchitech-wmsproxy__main.go, the corpus's own WMS-speaking proxy.
package wms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joeblew999/tileserver/internal/mercator"
	"github.com/joeblew999/tileserver/internal/sourcecfg"
	"github.com/joeblew999/tileserver/internal/tilesource"
	"github.com/joeblew999/tileserver/internal/tilesource/httptile"
)

// Source synthesizes single-tile GetMap requests against a remote WMS
// endpoint.
type Source struct {
	mu      sync.RWMutex
	cfg     sourcecfg.SourceConfig
	client  *http.Client
	timeout time.Duration
}

// New constructs an uninitialized remote-WMS tile source for cfg.
func New(cfg sourcecfg.SourceConfig, client *http.Client) *Source {
	if client == nil {
		client = httptile.NewClient()
	}
	return &Source{cfg: cfg, client: client}
}

// Init validates the base URL and fills in defaults.
func (s *Source) Init(ctx context.Context) error {
	if _, err := url.Parse(s.cfg.Location); err != nil {
		return tilesource.ConfigError("wms.Init", fmt.Errorf("bad location %q: %w", s.cfg.Location, err))
	}
	if s.cfg.Format == "" {
		s.cfg.Format = "png"
	}
	if s.cfg.ContentType == "" {
		s.cfg.ContentType = "image/" + strings.TrimPrefix(s.cfg.Format, "image/")
	}
	timeout := 15 * time.Second
	if s.cfg.RequestTimeout > 0 {
		timeout = time.Duration(s.cfg.RequestTimeout) * time.Second
	}
	s.timeout = timeout
	return nil
}

func (s *Source) getMapURL(x, y, z uint32) string {
	s.mu.RLock()
	base := s.cfg.Location
	format := s.cfg.Format
	transparent := s.cfg.Transparent
	s.mu.RUnlock()

	b := mercator.TileBounds(x, y, z)
	bbox := fmt.Sprintf("%f,%f,%f,%f", b.Left, b.Bottom, b.Right, b.Top)

	q := url.Values{}
	q.Set("SERVICE", "WMS")
	q.Set("VERSION", "1.1.1")
	q.Set("REQUEST", "GetMap")
	q.Set("SRS", "EPSG:3857")
	q.Set("BBOX", bbox)
	q.Set("WIDTH", strconv.Itoa(mercator.TileSize))
	q.Set("HEIGHT", strconv.Itoa(mercator.TileSize))
	q.Set("FORMAT", "image/"+strings.TrimPrefix(format, "image/"))
	if transparent {
		q.Set("TRANSPARENT", "TRUE")
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

// GetTile issues the synthesized GetMap request. A non-2xx status or an
// XML exception body is a BackendError; spec.md does not define a
// "missing" signal for a remote WMS tile, so the only ok=false answer
// without an error is for a zoom outside the source's range.
func (s *Source) GetTile(ctx context.Context, x, y, z uint32) ([]byte, bool, error) {
	min, max := s.Configuration().ZoomRange()
	if z < min || z > max {
		return nil, false, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.getMapURL(x, y, z), nil)
	if err != nil {
		return nil, false, tilesource.BackendError("wms.GetTile", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, tilesource.BackendError("wms.GetTile", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, tilesource.BackendError("wms.GetTile", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, tilesource.BackendError("wms.GetTile", fmt.Errorf("status %d", resp.StatusCode))
	}
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "xml") {
		return nil, false, tilesource.BackendError("wms.GetTile", fmt.Errorf("service exception: %s", data))
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
