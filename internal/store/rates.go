package store

import (
	"context"
	"fmt"
	"time"

	"billbook/internal/core"
	"billbook/internal/currency"
)

func (s *Store) Rates() []core.ExchangeRate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.rates)
}

// RateTable builds a conversion table from the stored rates.
func (s *Store) RateTable() currency.RateTable {
	return currency.NewRateTable(s.Rates())
}

// SetRates replaces the whole rate table. Rates are supplied from outside;
// nothing here fetches or computes them.
func (s *Store) SetRates(ctx context.Context, rates []core.ExchangeRate) ([]core.ExchangeRate, error) {
	normalized := make([]core.ExchangeRate, 0, len(rates))
	for i, r := range rates {
		r.From = core.NormalizeCurrency(string(r.From))
		r.To = core.NormalizeCurrency(string(r.To))
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rate %d: %w", i, err)
		}
		normalized = append(normalized, r)
	}

	s.mu.Lock()
	s.rates = normalized
	err := s.save(ctx, core.CollectionRates, s.rates)
	s.mu.Unlock()
	if err != nil {
		return normalized, err
	}
	s.committed(ctx, core.OpUpdated, core.CollectionRates, "")
	return normalized, nil
}

func recurringID(re core.RecurringExpense) string { return re.ID }

func (s *Store) RecurringExpenses() []core.RecurringExpense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.recurring)
}

func (s *Store) AddRecurringExpense(ctx context.Context, re core.RecurringExpense) (core.RecurringExpense, error) {
	re.Currency = core.NormalizeCurrency(string(re.Currency))
	if re.Currency == "" {
		re.Currency = s.base
	}
	if err := re.Validate(); err != nil {
		return core.RecurringExpense{}, err
	}

	s.mu.Lock()
	if re.ProjectID != "" && indexOf(s.projects, re.ProjectID, projectID) < 0 {
		s.mu.Unlock()
		return core.RecurringExpense{}, core.NewValidationError("projectId", "unknown project %s", re.ProjectID)
	}
	re.ID = s.newID()
	s.recurring = append(s.recurring, re)
	err := s.save(ctx, core.CollectionRecurring, s.recurring)
	s.mu.Unlock()
	if err != nil {
		return re, err
	}
	s.committed(ctx, core.OpCreated, core.CollectionRecurring, re.ID)
	return re, nil
}

// MarkRecurringExecuted stamps the last time a template produced an expense.
func (s *Store) MarkRecurringExecuted(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	i := indexOf(s.recurring, id, recurringID)
	if i < 0 {
		s.mu.Unlock()
		return notFound("recurring expense", id)
	}
	s.recurring[i].LastExecution = at
	err := s.save(ctx, core.CollectionRecurring, s.recurring)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.committed(ctx, core.OpUpdated, core.CollectionRecurring, id)
	return nil
}
