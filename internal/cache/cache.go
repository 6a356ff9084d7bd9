// Package cache implements the read-through MBTiles cache (spec.md
// section 4.4, C5): wraps any tilesource.Source, storing every tile it
// produces into a local MBTiles SQLite file and serving subsequent
// requests for the same tile straight from that file.
//
// Single-flight coalescing of concurrent misses for the same tile is
// grounded in akhenakh-gedtm30api__geotiff.go, which uses
// golang.org/x/sync/singleflight for exactly this "many callers, one
// fetch" shape. SQLite accepts only one writer at a time, so all cache
// writes are serialized through a single background goroutine reading
// from a channel -- the same "one writer, many readers" split the
// teacher's MBTiles backend documents for its own read path.
//
// The SQLite write is async, so a bounded in-memory LRU (the same
// hashicorp/golang-lru family mohammed-shakir-h3-spatial-cache uses for its
// dedupe table) sits in front of it and is populated synchronously before
// GetTile returns, closing the window where a sequential re-fetch of a tile
// just written would otherwise race the background writer and miss.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"

	"github.com/joeblew999/tileserver/internal/mercator"
	"github.com/joeblew999/tileserver/internal/sourcecfg"
	"github.com/joeblew999/tileserver/internal/tilesource"
)

// memCacheSize bounds the in-memory fast path; it only needs to survive the
// gap between a write returning and the async SQLite write landing, not
// hold the whole tileset.
const memCacheSize = 4096

const schema = `
CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT);
CREATE TABLE IF NOT EXISTS tiles (
	zoom_level INTEGER,
	tile_column INTEGER,
	tile_row INTEGER,
	tile_data BLOB
);
CREATE UNIQUE INDEX IF NOT EXISTS tiles_idx ON tiles (zoom_level, tile_column, tile_row);
`

type writeRequest struct {
	z, x, row uint32
	data      []byte
}

// Source wraps an upstream tilesource.Source with a read-through MBTiles
// cache.
type Source struct {
	upstream tilesource.Source
	group    singleflight.Group

	mu     sync.RWMutex
	readDB *sql.DB

	mem *lru.Cache[string, []byte]

	writes chan writeRequest
	done   chan struct{}
}

// New creates a cache in front of upstream, backed by the MBTiles file at
// path (created with a fresh schema if it does not already exist).
func New(upstream tilesource.Source, path string) (*Source, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache: create cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	writeDB.SetMaxOpenConns(1)
	if _, err := writeDB.Exec(schema); err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}

	readDB, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_query_only=true", path))
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("cache: open read handle: %w", err)
	}
	readDB.SetMaxOpenConns(8)

	mem, err := lru.New[string, []byte](memCacheSize)
	if err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, fmt.Errorf("cache: create memory cache: %w", err)
	}

	s := &Source{
		upstream: upstream,
		readDB:   readDB,
		mem:      mem,
		writes:   make(chan writeRequest, 256),
		done:     make(chan struct{}),
	}
	go s.writeLoop(writeDB)
	return s, nil
}

func (s *Source) writeLoop(db *sql.DB) {
	defer db.Close()
	defer close(s.done)
	for req := range s.writes {
		db.Exec(
			`INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`,
			req.z, req.x, req.row, req.data,
		)
	}
}

// Close stops the background writer and releases both database handles.
func (s *Source) Close() error {
	close(s.writes)
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readDB.Close()
}

// Init delegates to the upstream source.
func (s *Source) Init(ctx context.Context) error {
	return s.upstream.Init(ctx)
}

// GetTile serves (x, y, z) from the in-memory fast path or the cache file
// if present; otherwise it fetches from the upstream source (coalescing
// concurrent misses for the same tile into a single fetch), inserts the
// result into the in-memory cache synchronously, and queues it for a
// background SQLite write before returning it. The synchronous memory
// insert is what makes a "fetch, then immediately repeat" sequence hit the
// cache rather than racing the async writer.
func (s *Source) GetTile(ctx context.Context, x, y, z uint32) ([]byte, bool, error) {
	key := tileKey(x, y, z)

	if data, ok := s.mem.Get(key); ok {
		return data, true, nil
	}

	if data, ok, err := s.lookup(ctx, x, y, z); err != nil {
		return nil, false, tilesource.BackendError("cache.GetTile", err)
	} else if ok {
		s.mem.Add(key, data)
		return data, true, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		data, ok, err := s.upstream.GetTile(ctx, x, y, z)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		s.mem.Add(key, data)
		s.enqueueWrite(x, y, z, data)
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

func tileKey(x, y, z uint32) string {
	return fmt.Sprintf("%d/%d/%d", z, x, y)
}

func (s *Source) lookup(ctx context.Context, x, y, z uint32) ([]byte, bool, error) {
	s.mu.RLock()
	db := s.readDB
	s.mu.RUnlock()

	row := mercator.FlipY(y, z)
	var data []byte
	err := db.QueryRowContext(ctx,
		`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`,
		z, x, row,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *Source) enqueueWrite(x, y, z uint32, data []byte) {
	row := mercator.FlipY(y, z)
	select {
	case s.writes <- writeRequest{z: z, x: x, row: row, data: data}:
	default:
		// Write queue full: drop the write rather than block the request
		// path. The tile stays in the in-memory cache until evicted; after
		// that it is re-fetched from upstream.
	}
}

// Configuration returns the upstream source's record.
func (s *Source) Configuration() sourcecfg.SourceConfig {
	return s.upstream.Configuration()
}

var _ tilesource.Source = (*Source)(nil)
