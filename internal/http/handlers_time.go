package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"billbook/internal/core"
	"billbook/internal/timefield"
)

// handleReconcile derives the missing time field or checks all three. An
// inconsistent triple answers 422 with the untouched fields in details.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var in timefield.Input
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, "reconcile", err)
		return
	}
	res, err := timefield.Reconcile(in)
	if err != nil {
		status, body := statusFor(err)
		body.Details = res
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Clients())
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var c core.Client
	if err := decodeJSON(w, r, &c); err != nil {
		s.writeError(w, r, "add_client", err)
		return
	}
	c.Name = sanitizeInput(c.Name)
	c.Notes = sanitizeInput(c.Notes)
	created, err := s.ledger.AddClient(r.Context(), c)
	if err != nil {
		s.writeError(w, r, "add_client", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	projects := s.ledger.Projects()
	if clientID == "" {
		writeJSON(w, http.StatusOK, projects)
		return
	}
	out := make([]core.Project, 0, len(projects))
	for _, p := range projects {
		if p.ClientID == clientID {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var p core.Project
	if err := decodeJSON(w, r, &p); err != nil {
		s.writeError(w, r, "add_project", err)
		return
	}
	p.Name = sanitizeInput(p.Name)
	created, err := s.ledger.AddProject(r.Context(), p)
	if err != nil {
		s.writeError(w, r, "add_project", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleListTimeEntries accepts the report filter plus unbilled=true, which
// keeps billable entries that no invoice has claimed.
func (s *Server) handleListTimeEntries(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "list_time", err)
		return
	}
	unbilled, err := ParseBoolParam(r.URL.Query(), "unbilled")
	if err != nil {
		s.writeError(w, r, "list_time", err)
		return
	}

	projects := s.ledger.ProjectIndex()
	entries := s.ledger.TimeEntries()
	out := make([]core.TimeEntry, 0, len(entries))
	for _, te := range entries {
		if unbilled && (!te.IsBillable || te.InvoiceID != "") {
			continue
		}
		if f.ProjectID != "" && te.ProjectID != f.ProjectID {
			continue
		}
		if f.ClientID != "" && projects[te.ProjectID].ClientID != f.ClientID {
			continue
		}
		if !te.Date.Within(f.StartDate, f.EndDate) {
			continue
		}
		out = append(out, te)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTimeEntry(w http.ResponseWriter, r *http.Request) {
	te, err := s.ledger.TimeEntry(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "get_time", err)
		return
	}
	writeJSON(w, http.StatusOK, te)
}

func (s *Server) handleLogTime(w http.ResponseWriter, r *http.Request) {
	var te core.TimeEntry
	if err := decodeJSON(w, r, &te); err != nil {
		s.writeError(w, r, "log_time", err)
		return
	}
	te.Description = sanitizeInput(te.Description)
	if te.Date.IsZero() {
		te.Date = s.ledger.Today()
	}
	created, err := s.ledger.LogTime(r.Context(), te)
	if err != nil {
		s.writeError(w, r, "log_time", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateTimeEntry(w http.ResponseWriter, r *http.Request) {
	var te core.TimeEntry
	if err := decodeJSON(w, r, &te); err != nil {
		s.writeError(w, r, "update_time", err)
		return
	}
	te.Description = sanitizeInput(te.Description)
	updated, err := s.ledger.UpdateTimeEntry(r.Context(), chi.URLParam(r, "id"), te)
	if err != nil {
		s.writeError(w, r, "update_time", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTimeEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTimeEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, "delete_time", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
