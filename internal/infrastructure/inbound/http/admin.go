package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/domain/expectation"
	"github.com/sophialabs/mockexpect/internal/infrastructure/dto"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/logsink"
)

const (
	maxAdminBodySize = 1 << 20
	defaultLogLimit  = 100
	durableLogScan   = 1000
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.manageUC.Projects(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleListExpectations(w http.ResponseWriter, r *http.Request) {
	list, err := s.manageUC.List(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := make([]dto.Expectation, 0, len(list))
	for _, e := range list {
		out = append(out, dto.FromDomain(e))
	}
	writeJSON(w, http.StatusOK, paginate(out, r.URL.Query()))
}

func (s *Server) handleCreateExpectation(w http.ResponseWriter, r *http.Request) {
	var body dto.Expectation
	if !decodeBody(w, r, &body) {
		return
	}
	created, err := s.manageUC.Create(r.Context(), body.ToDomain(chi.URLParam(r, "projectID")))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.FromDomain(created))
}

func (s *Server) handleGetExpectation(w http.ResponseWriter, r *http.Request) {
	e, err := s.manageUC.Get(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "expectationID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromDomain(e))
}

func (s *Server) handleUpdateExpectation(w http.ResponseWriter, r *http.Request) {
	var body dto.Patch
	if !decodeBody(w, r, &body) {
		return
	}
	e, err := s.manageUC.Update(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "expectationID"), body.ToDomain())
	s.writeExpectation(w, e, err)
}

func (s *Server) handleDeleteExpectation(w http.ResponseWriter, r *http.Request) {
	if err := s.manageUC.Delete(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "expectationID")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddMatcher(w http.ResponseWriter, r *http.Request) {
	var body dto.Matcher
	if !decodeBody(w, r, &body) {
		return
	}
	e, err := s.manageUC.AddMatcher(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "expectationID"), body.ToDomain())
	s.writeExpectation(w, e, err)
}

func (s *Server) handleUpdateMatcher(w http.ResponseWriter, r *http.Request) {
	var body dto.Matcher
	if !decodeBody(w, r, &body) {
		return
	}
	body.ID = chi.URLParam(r, "matcherID")
	e, err := s.manageUC.UpdateMatcher(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "expectationID"), body.ToDomain())
	s.writeExpectation(w, e, err)
}

func (s *Server) handleRemoveMatcher(w http.ResponseWriter, r *http.Request) {
	e, err := s.manageUC.RemoveMatcher(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "expectationID"), chi.URLParam(r, "matcherID"))
	s.writeExpectation(w, e, err)
}

func (s *Server) handleAddAction(w http.ResponseWriter, r *http.Request) {
	var body dto.Action
	if !decodeBody(w, r, &body) {
		return
	}
	e, err := s.manageUC.AddAction(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "expectationID"), body.ToDomain())
	s.writeExpectation(w, e, err)
}

func (s *Server) handleUpdateAction(w http.ResponseWriter, r *http.Request) {
	var body dto.Action
	if !decodeBody(w, r, &body) {
		return
	}
	body.ID = chi.URLParam(r, "actionID")
	e, err := s.manageUC.UpdateAction(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "expectationID"), body.ToDomain())
	s.writeExpectation(w, e, err)
}

func (s *Server) handleRemoveAction(w http.ResponseWriter, r *http.Request) {
	e, err := s.manageUC.RemoveAction(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "expectationID"), chi.URLParam(r, "actionID"))
	s.writeExpectation(w, e, err)
}

// handleGetLogs serves recent log entries. Filters are repeated
// where=field:operator:value parameters.
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	q := logsink.Query{
		ProjectID: chi.URLParam(r, "projectID"),
		Limit:     defaultLogLimit,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_query", "limit must be a non-negative integer")
			return
		}
		q.Limit = n
	}
	for _, raw := range r.URL.Query()["where"] {
		c, err := logsink.ParseCondition(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		q.Conditions = append(q.Conditions, c)
	}

	var (
		entries []dispatch.LogEntry
		err     error
	)
	if r.URL.Query().Get("source") == "durable" {
		if s.durable == nil || q.ProjectID == "" {
			writeError(w, http.StatusBadRequest, "invalid_query", "durable logs need a configured sink and a project")
			return
		}
		entries, err = s.durable.Recent(r.Context(), q.ProjectID, durableLogScan)
		if err == nil {
			entries, err = q.Apply(entries)
		}
	} else {
		entries, err = s.logs.Query(q)
	}
	if err != nil {
		if errors.Is(err, logsink.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		s.logger.Error("failed to read logs", "project", q.ProjectID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if entries == nil {
		entries = []dispatch.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	n := 10
	if lastParam := r.URL.Query().Get("last"); lastParam != "" {
		if parsed, err := strconv.Atoi(lastParam); err == nil && parsed > 0 {
			n = parsed
		}
	}
	project := chi.URLParam(r, "projectID")
	if project == "" {
		project = r.URL.Query().Get("project")
	}
	writeJSON(w, http.StatusOK, s.handleUC.Trace(project, n))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.reloadUC.Execute(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "reload_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "expectations reloaded",
	})
}

func (s *Server) writeExpectation(w http.ResponseWriter, e *expectation.Expectation, err error) {
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromDomain(e))
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, expectation.ErrNotFound),
		errors.Is(err, expectation.ErrMatcherNotFound),
		errors.Is(err, expectation.ErrActionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, expectation.ErrInvalid):
		writeError(w, http.StatusBadRequest, "invalid", err.Error())
	case errors.Is(err, expectation.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		s.logger.Error("admin operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAdminBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", fmt.Sprintf("failed to decode request body: %v", err))
		return false
	}
	return true
}
