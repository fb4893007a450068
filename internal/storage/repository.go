package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRepository keeps each ledger collection as one JSON payload row and
// remembers which records the export worker has already written out.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; the store already serializes mutations.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Load returns the stored payload for key, or nil if nothing was saved yet.
func (r *SQLiteRepository) Load(ctx context.Context, key string) ([]byte, error) {
	c, err := r.queries.GetCollection(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", key, err)
	}
	return c.Payload, nil
}

// Save replaces the payload for key.
func (r *SQLiteRepository) Save(ctx context.Context, key string, payload []byte) error {
	err := r.queries.UpsertCollection(ctx, UpsertCollectionParams{
		Key:       key,
		Payload:   payload,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("upsert collection %s: %w", key, err)
	}
	slog.DebugContext(ctx, "Collection saved to SQLite", "collection", key, "bytes", len(payload))
	return nil
}

// Keys lists the collections that have been saved at least once.
func (r *SQLiteRepository) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.queries.ListCollectionKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collection keys: %w", err)
	}
	return keys, nil
}

// MarkExported records that a record has been written to the spreadsheet.
func (r *SQLiteRepository) MarkExported(ctx context.Context, collection, id string) error {
	err := r.queries.MarkExported(ctx, MarkExportedParams{
		Collection: collection,
		RecordID:   id,
		ExportedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("mark %s %s exported: %w", collection, id, err)
	}
	return nil
}

// IsExported reports whether MarkExported was called for the record.
func (r *SQLiteRepository) IsExported(ctx context.Context, collection, id string) (bool, error) {
	n, err := r.queries.CountExported(ctx, CountExportedParams{Collection: collection, RecordID: id})
	if err != nil {
		return false, fmt.Errorf("count exported %s %s: %w", collection, id, err)
	}
	return n > 0, nil
}
