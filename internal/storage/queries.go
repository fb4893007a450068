package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type Collection struct {
	Key       string
	Payload   []byte
	UpdatedAt time.Time
}

const getCollection = `-- name: GetCollection :one
SELECT key, payload FROM collections WHERE key = ?
`

func (q *Queries) GetCollection(ctx context.Context, key string) (Collection, error) {
	row := q.db.QueryRowContext(ctx, getCollection, key)
	var c Collection
	err := row.Scan(&c.Key, &c.Payload)
	return c, err
}

const upsertCollection = `-- name: UpsertCollection :exec
INSERT INTO collections (key, payload, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
`

type UpsertCollectionParams struct {
	Key       string
	Payload   []byte
	UpdatedAt time.Time
}

func (q *Queries) UpsertCollection(ctx context.Context, arg UpsertCollectionParams) error {
	_, err := q.db.ExecContext(ctx, upsertCollection, arg.Key, arg.Payload, arg.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

const listCollectionKeys = `-- name: ListCollectionKeys :many
SELECT key FROM collections ORDER BY key
`

func (q *Queries) ListCollectionKeys(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listCollectionKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		items = append(items, key)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markExported = `-- name: MarkExported :exec
INSERT INTO exports (collection, record_id, exported_at) VALUES (?, ?, ?)
ON CONFLICT(collection, record_id) DO UPDATE SET exported_at = excluded.exported_at
`

type MarkExportedParams struct {
	Collection string
	RecordID   string
	ExportedAt time.Time
}

func (q *Queries) MarkExported(ctx context.Context, arg MarkExportedParams) error {
	_, err := q.db.ExecContext(ctx, markExported, arg.Collection, arg.RecordID, arg.ExportedAt.UTC().Format(time.RFC3339Nano))
	return err
}

const countExported = `-- name: CountExported :one
SELECT COUNT(*) FROM exports WHERE collection = ? AND record_id = ?
`

type CountExportedParams struct {
	Collection string
	RecordID   string
}

func (q *Queries) CountExported(ctx context.Context, arg CountExportedParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countExported, arg.Collection, arg.RecordID)
	var count int64
	err := row.Scan(&count)
	return count, err
}
