// Package store holds the ledger in memory and is the only place records are
// changed.
//
// Every mutation is a named method. It validates its input, applies the change
// under the store mutex, writes the touched collection through the Persister
// as a JSON array and finally announces the change on the Publisher. There is
// no transaction across collections: if a write fails the in-memory change is
// kept and the error is returned to the caller.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"billbook/internal/core"
	"billbook/internal/log"
)

// Persister stores one opaque payload per collection key. Load returns a nil
// payload and no error for a key that was never saved.
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte) error
}

// Publisher receives change notifications. A nil Publisher is allowed.
type Publisher interface {
	PublishChange(ctx context.Context, event core.ChangeEvent) error
}

type Option func(*Store)

func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(log.ComponentStore) }
}

// WithClock replaces time.Now, which decides payment status and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs replaces the uuid generator.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithBaseCurrency sets the currency used when a record names none.
func WithBaseCurrency(c core.Currency) Option {
	return func(s *Store) { s.base = core.NormalizeCurrency(string(c)) }
}

type Store struct {
	mu        sync.RWMutex
	persister Persister
	publisher Publisher
	logger    *log.Logger
	mutations *log.StructuredLogger
	now       func() time.Time
	newID     func() string
	base      core.Currency
	revision  uint64

	clients   []core.Client
	projects  []core.Project
	entries   []core.TimeEntry
	expenses  []core.Expense
	invoices  []core.Invoice
	rates     []core.ExchangeRate
	recurring []core.RecurringExpense
}

// New returns an empty store.
func New(p Persister, opts ...Option) *Store {
	s := &Store{
		persister: p,
		logger:    log.Discard(),
		now:       time.Now,
		newID:     uuid.NewString,
		base:      "EUR",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mutations = log.NewStructuredLogger(s.logger)
	return s
}

// Open returns a store filled from everything the persister holds.
func Open(ctx context.Context, p Persister, opts ...Option) (*Store, error) {
	s := New(p, opts...)
	loads := []struct {
		key string
		dst any
	}{
		{core.CollectionClients, &s.clients},
		{core.CollectionProjects, &s.projects},
		{core.CollectionTime, &s.entries},
		{core.CollectionExpenses, &s.expenses},
		{core.CollectionInvoices, &s.invoices},
		{core.CollectionRates, &s.rates},
		{core.CollectionRecurring, &s.recurring},
	}
	for _, l := range loads {
		payload, err := p.Load(ctx, l.key)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", l.key, err)
		}
		if len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, l.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", l.key, err)
		}
	}
	s.logger.InfoContext(ctx, "Ledger loaded",
		"clients", len(s.clients),
		"projects", len(s.projects),
		"time_entries", len(s.entries),
		"expenses", len(s.expenses),
		"invoices", len(s.invoices))
	return s, nil
}

// Revision increases with every mutation. Caches key on it.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// BaseCurrency is the default for records that name no currency.
func (s *Store) BaseCurrency() core.Currency {
	return s.base
}

// Today is the store clock truncated to a date.
func (s *Store) Today() core.Date {
	return core.DateOf(s.now())
}

// save writes one collection and bumps the revision. The caller holds s.mu.
func (s *Store) save(ctx context.Context, key string, items any) error {
	s.revision++
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.persister.Save(ctx, key, payload); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist collection",
			log.FieldCollection, key, log.FieldError, err)
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// committed logs and publishes a change that has been persisted. It must be
// called without s.mu held.
func (s *Store) committed(ctx context.Context, op core.ChangeOp, collection, id string) {
	s.mutations.LogMutation(ctx, string(op), collection, id)
	if s.publisher == nil {
		return
	}
	ev := core.ChangeEvent{Collection: collection, ID: id, Op: op, Timestamp: s.now().UTC()}
	if err := s.publisher.PublishChange(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish change event",
			log.FieldCollection, collection, log.FieldID, id, log.FieldError, err)
	}
}

func indexOf[T any](items []T, id string, idOf func(T) string) int {
	for i, it := range items {
		if idOf(it) == id {
			return i
		}
	}
	return -1
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
