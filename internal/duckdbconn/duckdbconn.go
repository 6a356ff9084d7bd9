// Package duckdbconn owns the single shared DuckDB connection used by
// postgis/duckvector sources (spec.md section 4.3, C4f; see DESIGN.md for
// why DuckDB's spatial extension stands in for PostGIS).
//
// Adapted from the teacher's internal/db/duckdb.go: same singleton-via-once
// construction and the same spatial+parquet extension load, now scoped to
// one file per process instead of per request.
package duckdbconn

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config selects where the DuckDB file lives.
type Config struct {
	DataDir string
	DBName  string
}

// Get returns the process-wide DuckDB connection, opening it (and loading
// the spatial/parquet extensions) on first use.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		dir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			initErr = fmt.Errorf("duckdbconn: create data dir: %w", err)
			return
		}
		path := filepath.Join(dir, cfg.DBName+".duckdb")
		instance, initErr = sql.Open("duckdb", path)
		if initErr != nil {
			return
		}
		for _, ext := range []string{"spatial", "parquet"} {
			// Extensions may already be bundled/installed; a failure here
			// is non-fatal, matching the teacher's own best-effort load.
			instance.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext))
		}
	})
	return instance, initErr
}

// Close closes the shared connection, if open.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}
