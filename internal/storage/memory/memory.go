// Package memory keeps ledger collections in process memory. It backs tests
// and DATA_BACKEND=memory runs; nothing survives a restart except what the
// seed files provide.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Store struct {
	mu       sync.Mutex
	payloads map[string][]byte
	exported map[string]bool
}

func New() *Store {
	return &Store{payloads: map[string][]byte{}, exported: map[string]bool{}}
}

// NewFromFiles seeds collections from <base>/seed_<collection>.json. Missing
// files are skipped; a file that is not a JSON array is an error.
func NewFromFiles(base string) (*Store, error) {
	s := New()
	matches, err := filepath.Glob(filepath.Join(base, "seed_*.json"))
	if err != nil {
		return nil, err
	}
	for _, path := range matches {
		key := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "seed_"), ".json")
		if key == "" {
			continue
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed %s: %w", path, err)
		}
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return nil, fmt.Errorf("seed %s must be a JSON array: %w", path, err)
		}
		s.payloads[key] = b
	}
	return s, nil
}

func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.payloads[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) Save(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[key] = append([]byte(nil), payload...)
	return nil
}

func (s *Store) MarkExported(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exported[collection+"/"+id] = true
	return nil
}

func (s *Store) IsExported(_ context.Context, collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exported[collection+"/"+id], nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
