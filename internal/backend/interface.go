package backend

import (
	"context"

	"billbook/internal/sheets"
	"billbook/internal/store"
)

// Persistence is what a storage backend provides: collection payloads for the
// store plus export bookkeeping for the worker.
type Persistence interface {
	store.Persister
	IsExported(ctx context.Context, collection, id string) (bool, error)
	MarkExported(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
}

// SheetWriter is an export target for the worker.
type SheetWriter interface {
	sheets.RowWriter
	sheets.SheetReplacer
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the wired backend and its cleanup function.
// Publisher is nil when no broker is configured.
type BackendResult struct {
	Persistence Persistence
	Publisher   store.Publisher
	Cleanup     CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	CreateSheetWriter(ctx context.Context, config Config) (SheetWriter, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory backend seed directory
	DataDirectory string

	// Optional change notifications
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Optional spreadsheet export
	GoogleSpreadsheetID      string
	GoogleSheetPrefix        string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
