// Package httptile implements the remote XYZ/TMS tile source (spec.md
// section 4.3, C4c): a URL template containing {X}/{Y}/{Z}, fetched over a
// pooled HTTP client.
//
// The fetch loop (URL templating, status-code-driven "missing tile" vs.
// "backend error" classification) is grounded in RoninZc-tiler/task.go's
// tileFetcher, generalized from a one-shot batch downloader into a
// per-request server-side pull. Each source's upstream calls are wrapped in
// a sony/gobreaker/v2 circuit breaker (the resilience dependency
// tomtom215-cartographus wires for its own upstream calls) so a
// persistently failing tile server degrades to fast, explicit
// tilesource.BackendError responses instead of piling up slow timeouts
// under spec.md section 5's concurrent request executor.
package httptile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/joeblew999/tileserver/internal/mercator"
	"github.com/joeblew999/tileserver/internal/sourcecfg"
	"github.com/joeblew999/tileserver/internal/tilesource"
)

// defaultTimeout is the per-backend request timeout from spec.md section 5.
const defaultTimeout = 15 * time.Second

// NewClient builds the shared, connection-pooling HTTP client used by all
// HTTP-backed sources (C4c/C4d/C4e).
func NewClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Source fetches tiles from a remote XYZ or TMS endpoint.
type Source struct {
	mu      sync.RWMutex
	cfg     sourcecfg.SourceConfig
	client  *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// New constructs an uninitialized HTTP tile source for cfg, sharing client
// across sources when non-nil (pass nil to build a dedicated client).
func New(cfg sourcecfg.SourceConfig, client *http.Client) *Source {
	if client == nil {
		client = NewClient()
	}
	return &Source{cfg: cfg, client: client}
}

// Init validates the URL template and readies the circuit breaker.
func (s *Source) Init(ctx context.Context) error {
	lower := strings.ToLower(s.cfg.Location)
	for _, ph := range []string{"{x}", "{y}", "{z}"} {
		if !strings.Contains(lower, ph) {
			return tilesource.ConfigError("httptile.Init", fmt.Errorf("location %q missing placeholder %s", s.cfg.Location, ph))
		}
	}
	timeout := defaultTimeout
	if s.cfg.RequestTimeout > 0 {
		timeout = time.Duration(s.cfg.RequestTimeout) * time.Second
	}
	s.timeout = timeout

	s.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "httptile:" + s.cfg.ID,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A 404 is a legitimate "tile absent" answer (spec.md section
		// 4.2/7's Ok(None) contract), not a backend failure: a sparse
		// source with long runs of missing tiles must not trip the
		// breaker and start returning BackendError for tiles it was
		// always going to answer None for.
		IsSuccessful: func(err error) bool {
			return err == nil || err == errNotFound
		},
	})

	if s.cfg.ContentType == "" && s.cfg.Format != "" {
		s.cfg.ContentType = contentTypeFor(s.cfg.Format)
	}
	return nil
}

func contentTypeFor(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "pbf":
		return "application/x-protobuf"
	default:
		return ""
	}
}

func (s *Source) url(x, y, z uint32) string {
	s.mu.RLock()
	loc := s.cfg.Location
	tms := s.cfg.TMS || s.cfg.Type == sourcecfg.TypeTMS
	s.mu.RUnlock()

	row := y
	if tms {
		row = mercator.FlipY(y, z)
	}
	u := loc
	u = replaceCaseInsensitive(u, "{Z}", strconv.FormatUint(uint64(z), 10))
	u = replaceCaseInsensitive(u, "{X}", strconv.FormatUint(uint64(x), 10))
	u = replaceCaseInsensitive(u, "{Y}", strconv.FormatUint(uint64(row), 10))
	return u
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

// GetTile issues the GET through the circuit breaker. HTTP 404 is the
// documented "missing tile" signal (Ok(None)); any other non-2xx status or
// transport error is a BackendError.
func (s *Source) GetTile(ctx context.Context, x, y, z uint32) ([]byte, bool, error) {
	min, max := s.Configuration().ZoomRange()
	if z < min || z > max {
		return nil, false, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url := s.url(x, y, z)
	data, err := s.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, errNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("httptile: %s: status %d", url, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})

	if err == errNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, tilesource.BackendError("httptile.GetTile", err)
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

var errNotFound = fmt.Errorf("httptile: tile not found")

// Configuration returns the source record.
func (s *Source) Configuration() sourcecfg.SourceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

var _ tilesource.Source = (*Source)(nil)
