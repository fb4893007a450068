package store

import (
	"context"

	"billbook/internal/core"
)

func expenseID(e core.Expense) string { return e.ID }

func (s *Store) Expenses() []core.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.expenses)
}

func (s *Store) Expense(id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.expenses, id, expenseID)
	if i < 0 {
		return core.Expense{}, notFound("expense", id)
	}
	return s.expenses[i], nil
}

// AddExpense records an expense. Status defaults to Draft and currency to the
// project's, then the base currency. A phase must belong to the project.
func (s *Store) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	if e.Status == "" {
		e.Status = core.ExpenseDraft
	}
	e.Currency = core.NormalizeCurrency(string(e.Currency))
	if e.ProjectID != "" {
		pi := indexOf(s.projects, e.ProjectID, projectID)
		if pi < 0 {
			s.mu.Unlock()
			return core.Expense{}, core.NewValidationError("projectId", "unknown project %s", e.ProjectID)
		}
		p := s.projects[pi]
		if e.PhaseID != "" {
			if _, ok := p.Phase(e.PhaseID); !ok {
				s.mu.Unlock()
				return core.Expense{}, core.NewValidationError("phaseId", "project %s has no phase %s", p.Name, e.PhaseID)
			}
		}
		if e.Currency == "" {
			e.Currency = p.Currency
		}
	} else if e.PhaseID != "" {
		s.mu.Unlock()
		return core.Expense{}, &core.ValidationError{Field: "phaseId", Message: "a phase needs a project"}
	}
	if e.Currency == "" {
		e.Currency = s.base
	}
	if err := e.Validate(); err != nil {
		s.mu.Unlock()
		return core.Expense{}, err
	}

	e.ID = s.newID()
	e.Receipts = nil
	s.expenses = append(s.expenses, e)
	err := s.save(ctx, core.CollectionExpenses, s.expenses)
	s.mu.Unlock()
	if err != nil {
		return e, err
	}
	s.committed(ctx, core.OpCreated, core.CollectionExpenses, e.ID)
	return e, nil
}

func (s *Store) SetExpenseStatus(ctx context.Context, id string, status core.ExpenseStatus) (core.Expense, error) {
	if !status.Valid() {
		return core.Expense{}, core.NewValidationError("status", "unknown expense status %s", status)
	}
	s.mu.Lock()
	i := indexOf(s.expenses, id, expenseID)
	if i < 0 {
		s.mu.Unlock()
		return core.Expense{}, notFound("expense", id)
	}
	s.expenses[i].Status = status
	e := s.expenses[i]
	err := s.save(ctx, core.CollectionExpenses, s.expenses)
	s.mu.Unlock()
	if err != nil {
		return e, err
	}
	s.committed(ctx, core.OpUpdated, core.CollectionExpenses, id)
	return e, nil
}

// AttachReceipt appends a receipt to an expense. Extracted fields are stored
// as read and never overwrite the expense itself.
func (s *Store) AttachReceipt(ctx context.Context, id string, r core.Receipt) (core.Expense, error) {
	s.mu.Lock()
	i := indexOf(s.expenses, id, expenseID)
	if i < 0 {
		s.mu.Unlock()
		return core.Expense{}, notFound("expense", id)
	}
	if r.ID == "" {
		r.ID = s.newID()
	}
	if r.UploadedAt.IsZero() {
		r.UploadedAt = s.now().UTC()
	}
	receipts := append(clone(s.expenses[i].Receipts), r)
	s.expenses[i].Receipts = receipts
	e := s.expenses[i]
	err := s.save(ctx, core.CollectionExpenses, s.expenses)
	s.mu.Unlock()
	if err != nil {
		return e, err
	}
	s.committed(ctx, core.OpUpdated, core.CollectionExpenses, id)
	return e, nil
}
