package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// DB bundles the record store and the turn history backed by one database.
type DB struct {
	db      *sql.DB
	Store   *RecordStore
	History *HistoryStore
}

// Open opens or creates the database at path for vectors of length dim.
// The journal is WAL, writes are serialized over a single connection and
// the schema is migrated. The caller must Close the returned DB.
func Open(ctx context.Context, path string, dim int) (*DB, error) {
	cfg := Config{Path: path, Dimensions: dim}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &DB{
		db:      db,
		Store:   &RecordStore{db: db, dim: dim},
		History: &HistoryStore{db: db},
	}, nil
}

// Close releases the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

func openDB(ctx context.Context, cfg Config) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	for _, pragma := range cfg.pragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
