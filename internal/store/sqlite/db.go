// Package sqlite is the default durable store engine.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/matheus3301/outpost/internal/store"
)

// DB is a store.Store backed by a single SQLite file.
type DB struct {
	path string
	ids  *store.IDGenerator

	mu sync.Mutex
	db *sql.DB
}

// New returns an engine for the database at path. Nothing is opened until
// Init is called.
func New(path string, ids *store.IDGenerator) *DB {
	return &DB{path: path, ids: ids}
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Init opens the database on first use and applies pending migrations.
func (d *DB) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		db, err := Open(d.path)
		if err != nil {
			return err
		}
		d.db = db
	}
	if _, err := Migrate(d.db); err != nil {
		return err
	}
	return nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *DB) conn() (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil, fmt.Errorf("sqlite store %s: not initialized", d.path)
	}
	return d.db, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var _ store.Store = (*DB)(nil)
