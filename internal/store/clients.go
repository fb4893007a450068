package store

import (
	"context"

	"billbook/internal/core"
)

func clientID(c core.Client) string   { return c.ID }
func projectID(p core.Project) string { return p.ID }

func (s *Store) Clients() []core.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.clients)
}

func (s *Store) Client(id string) (core.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.clients, id, clientID)
	if i < 0 {
		return core.Client{}, notFound("client", id)
	}
	return s.clients[i], nil
}

// AddClient stores a new client. A missing currency defaults to the base
// currency.
func (s *Store) AddClient(ctx context.Context, c core.Client) (core.Client, error) {
	c.Currency = core.NormalizeCurrency(string(c.Currency))
	if c.Currency == "" {
		c.Currency = s.base
	}
	if err := c.Validate(); err != nil {
		return core.Client{}, err
	}

	s.mu.Lock()
	c.ID = s.newID()
	s.clients = append(s.clients, c)
	err := s.save(ctx, core.CollectionClients, s.clients)
	s.mu.Unlock()
	if err != nil {
		return c, err
	}
	s.committed(ctx, core.OpCreated, core.CollectionClients, c.ID)
	return c, nil
}

func (s *Store) Projects() []core.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.projects)
}

func (s *Store) Project(id string) (core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.projects, id, projectID)
	if i < 0 {
		return core.Project{}, notFound("project", id)
	}
	return s.projects[i], nil
}

// ProjectIndex maps project ids to projects for the calculators.
func (s *Store) ProjectIndex() map[string]core.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectIndexLocked()
}

func (s *Store) projectIndexLocked() map[string]core.Project {
	m := make(map[string]core.Project, len(s.projects))
	for _, p := range s.projects {
		m[p.ID] = p
	}
	return m
}

// AddProject stores a project for an existing client. The currency defaults
// to the client's and the status to Active. Phases without an id get one.
func (s *Store) AddProject(ctx context.Context, p core.Project) (core.Project, error) {
	s.mu.Lock()
	ci := indexOf(s.clients, p.ClientID, clientID)
	if ci < 0 && p.ClientID != "" {
		s.mu.Unlock()
		return core.Project{}, core.NewValidationError("clientId", "unknown client %s", p.ClientID)
	}
	p.Currency = core.NormalizeCurrency(string(p.Currency))
	if p.Currency == "" && ci >= 0 {
		p.Currency = s.clients[ci].Currency
	}
	if p.Status == "" {
		p.Status = core.ProjectActive
	}
	if err := p.Validate(); err != nil {
		s.mu.Unlock()
		return core.Project{}, err
	}
	p.Phases = append([]core.Phase(nil), p.Phases...)
	for i := range p.Phases {
		if p.Phases[i].ID == "" {
			p.Phases[i].ID = s.newID()
		}
	}

	p.ID = s.newID()
	s.projects = append(s.projects, p)
	err := s.save(ctx, core.CollectionProjects, s.projects)
	s.mu.Unlock()
	if err != nil {
		return p, err
	}
	s.committed(ctx, core.OpCreated, core.CollectionProjects, p.ID)
	return p, nil
}
