package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStoreSaveAndLoad(t *testing.T) {
	s := New()
	ctx := context.Background()

	b, err := s.Load(ctx, "clients")
	if err != nil || b != nil {
		t.Fatalf("expected empty load, got %q err=%v", b, err)
	}

	payload := []byte(`[{"id":"a"}]`)
	if err := s.Save(ctx, "clients", payload); err != nil {
		t.Fatal(err)
	}
	payload[0] = 'X' // the store keeps its own copy

	b, _ = s.Load(ctx, "clients")
	if string(b) != `[{"id":"a"}]` {
		t.Fatalf("unexpected payload %q", b)
	}
}

func TestNewFromFilesSeeds(t *testing.T) {
	dir := t.TempDir()

	// No files -> empty store
	s, err := NewFromFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := s.Load(context.Background(), "clients"); b != nil {
		t.Fatalf("expected no seed, got %q", b)
	}

	mustWrite := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("seed_clients.json", `[{"id":"c1","name":"Acme","currency":"EUR"}]`)
	mustWrite("notes.txt", "ignored")

	s, err = NewFromFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := s.Load(context.Background(), "clients")
	if string(b) != `[{"id":"c1","name":"Acme","currency":"EUR"}]` {
		t.Fatalf("unexpected seed %q", b)
	}

	mustWrite("seed_projects.json", `{"not":"an array"}`)
	if _, err := NewFromFiles(dir); err == nil {
		t.Fatal("expected error for non-array seed")
	}
}

func TestExportTracking(t *testing.T) {
	s := New()
	ctx := context.Background()
	if ok, _ := s.IsExported(ctx, "expenses", "e1"); ok {
		t.Fatal("nothing exported yet")
	}
	_ = s.MarkExported(ctx, "expenses", "e1")
	if ok, _ := s.IsExported(ctx, "expenses", "e1"); !ok {
		t.Fatal("expected e1 exported")
	}
	if ok, _ := s.IsExported(ctx, "time_entries", "e1"); ok {
		t.Fatal("collections must not share export marks")
	}
}
