package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Handler: slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})})
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))
	return rec
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestComponentIsAddedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf).WithComponent(ComponentStore).With(FieldRequestID, "req_1")
	assert.Equal(t, ComponentStore, logger.Component())

	logger.Info("Ledger loaded", "clients", 2)
	rec := lastRecord(t, &buf)
	assert.Equal(t, ComponentStore, rec[FieldComponent])
	assert.Equal(t, "req_1", rec[FieldRequestID])
	assert.Equal(t, float64(2), rec["clients"])
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf).WithComponent(ComponentTrace)

	assert.Same(t, logger, FromContext(NewContext(context.Background(), logger)))
	assert.Equal(t, "unknown", FromContext(context.Background()).Component())
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newJSONLogger(&buf))
	ctx := context.Background()

	req := httptest.NewRequest("POST", "/api/clients?x=1", nil)
	req.Header.Set("User-Agent", "curl/8")
	sl.LogHTTPEnd(ctx, req, 503, 12, "10.0.0.1")
	rec := lastRecord(t, &buf)
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, ComponentHTTP, rec[FieldComponent])
	assert.Equal(t, "/api/clients", rec[FieldPath])
	assert.Equal(t, "x=1", rec[FieldQuery])
	assert.Equal(t, false, rec[FieldSuccess])
	assert.Equal(t, "10.0.0.1", rec[FieldClientIP])

	sl.LogHTTPEnd(ctx, httptest.NewRequest("GET", "/healthz", nil), 404, 1, "")
	assert.Equal(t, "WARN", lastRecord(t, &buf)["level"])

	sl.LogMutation(ctx, "created", "invoices", "inv-1")
	rec = lastRecord(t, &buf)
	assert.Equal(t, ComponentStore, rec[FieldComponent])
	assert.Equal(t, "invoices", rec[FieldCollection])
	assert.Equal(t, "inv-1", rec[FieldID])

	sl.LogError(ctx, "Request failed", errors.New("disk full"), ComponentHTTP, "export", nil)
	rec = lastRecord(t, &buf)
	assert.Equal(t, "disk full", rec[FieldError])
	assert.Equal(t, "export", rec[FieldOperation])
}
