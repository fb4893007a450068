package store

import (
	"context"

	"billbook/internal/core"
	"billbook/internal/timefield"
)

func entryID(te core.TimeEntry) string { return te.ID }

func (s *Store) TimeEntries() []core.TimeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.entries)
}

func (s *Store) TimeEntry(id string) (core.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.entries, id, entryID)
	if i < 0 {
		return core.TimeEntry{}, notFound("time entry", id)
	}
	return s.entries[i], nil
}

// prepareEntry reconciles and validates an entry against known projects. The
// caller holds s.mu.
func (s *Store) prepareEntry(te *core.TimeEntry) error {
	if err := timefield.ApplyToEntry(te); err != nil {
		return err
	}
	if err := te.Validate(); err != nil {
		return err
	}
	if indexOf(s.projects, te.ProjectID, projectID) < 0 {
		return core.NewValidationError("projectId", "unknown project %s", te.ProjectID)
	}
	return nil
}

// LogTime records a new entry. The start, stop and hours fields are
// reconciled first; an inconsistent triple is rejected.
func (s *Store) LogTime(ctx context.Context, te core.TimeEntry) (core.TimeEntry, error) {
	s.mu.Lock()
	if err := s.prepareEntry(&te); err != nil {
		s.mu.Unlock()
		return core.TimeEntry{}, err
	}
	te.ID = s.newID()
	te.InvoiceID = ""
	s.entries = append(s.entries, te)
	err := s.save(ctx, core.CollectionTime, s.entries)
	s.mu.Unlock()
	if err != nil {
		return te, err
	}
	s.committed(ctx, core.OpCreated, core.CollectionTime, te.ID)
	return te, nil
}

// UpdateTimeEntry replaces an entry. The invoice link is kept as stored, and
// invoices that already billed the entry keep their snapshot.
func (s *Store) UpdateTimeEntry(ctx context.Context, id string, te core.TimeEntry) (core.TimeEntry, error) {
	s.mu.Lock()
	i := indexOf(s.entries, id, entryID)
	if i < 0 {
		s.mu.Unlock()
		return core.TimeEntry{}, notFound("time entry", id)
	}
	if err := s.prepareEntry(&te); err != nil {
		s.mu.Unlock()
		return core.TimeEntry{}, err
	}
	te.ID = id
	te.InvoiceID = s.entries[i].InvoiceID
	s.entries[i] = te
	err := s.save(ctx, core.CollectionTime, s.entries)
	s.mu.Unlock()
	if err != nil {
		return te, err
	}
	s.committed(ctx, core.OpUpdated, core.CollectionTime, id)
	return te, nil
}

func (s *Store) DeleteTimeEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	i := indexOf(s.entries, id, entryID)
	if i < 0 {
		s.mu.Unlock()
		return notFound("time entry", id)
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	err := s.save(ctx, core.CollectionTime, s.entries)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.committed(ctx, core.OpDeleted, core.CollectionTime, id)
	return nil
}
