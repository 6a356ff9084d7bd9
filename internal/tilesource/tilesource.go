// Package tilesource defines the uniform tile-source contract (spec.md
// section 4.2) and the read-only registry built from it at startup.
//
// Grounded in spec.md section 9's "dynamic source dispatch" design note:
// the concrete backend is chosen at runtime from the configured Type and
// modeled as an opaque handle behind this interface, rather than as a
// compile-time tagged union. kdudkov-tileproxy__layer.go uses the same
// "one interface, many backends keyed by name" shape for its tile
// providers.
package tilesource

import (
	"context"
	"errors"
	"fmt"

	"github.com/joeblew999/tileserver/internal/sourcecfg"
)

// Kind distinguishes the error categories from spec.md section 7.
type Kind int

const (
	KindConfig Kind = iota
	KindBackendInit
	KindBackend
	KindProtocol
	KindFormat
)

// Error wraps an underlying cause with one of the spec's error kinds.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tilesource: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ConfigError reports a static configuration problem, fatal at startup.
func ConfigError(op string, err error) error { return newErr(KindConfig, op, err) }

// BackendInitError reports a backend unreachable or malformed at Init.
func BackendInitError(op string, err error) error { return newErr(KindBackendInit, op, err) }

// BackendError reports a transient failure during GetTile.
func BackendError(op string, err error) error { return newErr(KindBackend, op, err) }

// FormatError reports corrupt image/TIFF bytes during rendering.
func FormatError(op string, err error) error { return newErr(KindFormat, op, err) }

// ProtocolError reports bad client-supplied request parameters (spec.md
// section 7): surfaced as HTTP 400 on plain tile endpoints or an OGC
// ServiceExceptionReport on WMS.
func ProtocolError(op string, err error) error { return newErr(KindProtocol, op, err) }

// IsKind reports whether err (or anything it wraps) carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// Source is the contract every tile backend implements (spec.md section
// 4.2). GetTile returns (nil, false, nil) for the explicit "no tile"
// answer, which is distinct from an error.
type Source interface {
	// Init performs any backend I/O needed before serving (opening a
	// database, probing an HTTP endpoint, parsing a GeoTIFF header) and
	// fills in the derived fields of its Configuration.
	Init(ctx context.Context) error

	// GetTile fetches or renders the tile at (x, y, z) in XYZ (north
	// origin) addressing. ok=false with err=nil means "legitimately
	// absent"; a non-nil err means an unexpected backend failure.
	GetTile(ctx context.Context, x, y, z uint32) (data []byte, ok bool, err error)

	// Configuration returns the post-Init source record.
	Configuration() sourcecfg.SourceConfig
}

// Registry is the immutable (after NewRegistry) id -> Source map described in
// spec.md section 3.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds a registry from already-constructed sources, calling
// Init on each. Per spec.md section 7, a BackendInitError is fatal for that
// source; whether it blocks startup entirely is the "lenient" policy
// decided by the caller (internal/server wiring).
func NewRegistry(ctx context.Context, sources map[string]Source, lenient bool) (*Registry, []error) {
	r := &Registry{sources: make(map[string]Source, len(sources))}
	var errs []error
	for id, src := range sources {
		if err := src.Init(ctx); err != nil {
			wrapped := fmt.Errorf("source %q: %w", id, err)
			errs = append(errs, wrapped)
			if !lenient {
				// Strict policy: one failing source aborts the whole
				// registry build, the caller treats errs as fatal.
				return r, errs
			}
			continue
		}
		r.sources[id] = src
	}
	return r, errs
}

// Get looks up a source by id in constant time.
func (r *Registry) Get(id string) (Source, bool) {
	s, ok := r.sources[id]
	return s, ok
}

// IDs returns every registered source id.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	return ids
}

// All returns the full id -> Source map. Callers must not mutate it.
func (r *Registry) All() map[string]Source {
	return r.sources
}
