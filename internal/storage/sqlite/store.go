// Package sqlite implements the storage interface using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/obligolabs/obligo/internal/storage"
	"github.com/obligolabs/obligo/internal/types"
)

// Store implements storage.Storage using SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

var _ storage.Storage = (*Store)(nil)

// setupWASMCache configures WASM compilation caching to reduce SQLite
// startup time. The compiled module lands in ~/.cache/obligo/wasm/ (wazero
// keys the cache by its own version), with an in-memory fallback when the
// cache directory cannot be created.
func setupWASMCache() string {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "obligo", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
		cacheDir = ""
	}

	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
	return cacheDir
}

func init() {
	// Avoid re-JITing the SQLite module on every process start.
	_ = setupWASMCache()
}

// New opens (and initializes if needed) a SQLite store at path.
// Use ":memory:" for an ephemeral database.
func New(ctx context.Context, path string) (*Store, error) {
	// For :memory: databases, use shared cache so multiple connections see
	// the same data. WAL does not work with shared in-memory databases.
	var connStr string
	if path == ":memory:" {
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	} else if strings.HasPrefix(path, "file:") {
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
		}
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// In-memory databases are isolated per connection by default; force a
	// single connection so every query sees the same data.
	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	if isInMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports 1 writer + N readers; cap the pool so write lock
		// contention does not pile up goroutines.
		maxConns := runtime.NumCPU() + 1
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
	}

	if !isInMemory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, dbPath: path}, nil
}

// Path returns the database path this store was opened with.
func (s *Store) Path() string {
	return s.dbPath
}

// Close releases the underlying database handle. Safe to call twice.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// UnderlyingDB exposes the raw handle for tests and maintenance tooling.
func (s *Store) UnderlyingDB() *sql.DB {
	return s.db
}

// execer abstracts *sql.DB and *sql.Tx for helpers that run inside and
// outside transactions.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// appendEvent writes one audit trail row. Events are best-effort context
// for humans, but they are written in the same transaction as the change
// they record so the trail never references a rolled-back write.
func appendEvent(ctx context.Context, e execer, obligationID string, eventType types.EventType, actor string, oldValue, newValue, comment *string) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO events (obligation_id, event_type, actor, old_value, new_value, comment)
		VALUES (?, ?, ?, ?, ?, ?)`,
		obligationID, string(eventType), actor, oldValue, newValue, comment)
	return wrapDBError("append event", err)
}

// strPtr returns a pointer to s, for nullable event columns.
func strPtr(s string) *string {
	return &s
}
