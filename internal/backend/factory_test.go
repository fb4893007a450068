package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billbook/internal/config"
	sheetsmem "billbook/internal/sheets/memory"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:       "sqlite",
		SQLiteDBPath:      "x.db",
		AMQPURL:           "amqp://localhost/",
		AMQPExchange:      "billbook",
		AMQPQueue:         "ledger_changes",
		GoogleSheetPrefix: "Ledger",
	})
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, "x.db", cfg.SQLiteDBPath)
	assert.Equal(t, "ledger_changes", cfg.AMQPQueue)
	assert.Equal(t, "Ledger", cfg.GoogleSheetPrefix)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "a.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown type", Config{Type: "sheets"}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://x/", AMQPExchange: "e"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed_clients.json"), []byte(`[{"id":"c1","name":"Acme","currency":"EUR"}]`), 0o644))

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: dir})
	require.NoError(t, err)
	defer res.Cleanup()

	assert.Nil(t, res.Publisher)
	b, err := res.Persistence.Load(context.Background(), "clients")
	require.NoError(t, err)
	assert.Contains(t, string(b), "Acme")
	assert.NoError(t, res.Persistence.Ping(context.Background()))
}

func TestCreateBackend_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: path})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, res.Persistence.Save(ctx, "rates", []byte(`[]`)))
	require.NoError(t, res.Persistence.MarkExported(ctx, "expenses", "e1"))
	done, err := res.Persistence.IsExported(ctx, "expenses", "e1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.NoError(t, res.Cleanup())
}

func TestCreateSheetWriter_DefaultsToMemory(t *testing.T) {
	w, err := NewFactory(nil).CreateSheetWriter(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	assert.IsType(t, &sheetsmem.Writer{}, w)
}
