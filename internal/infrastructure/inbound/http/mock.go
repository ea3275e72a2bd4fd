package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/domain/trace"
)

// unmatchedResponse is the debug payload sent when no expectation matched.
type unmatchedResponse struct {
	Error      string                  `json:"error"`
	Message    string                  `json:"message"`
	Project    string                  `json:"project"`
	Method     string                  `json:"method"`
	Path       string                  `json:"path"`
	Candidates []trace.CandidateResult `json:"candidates"`
}

func (s *Server) serveMock(w http.ResponseWriter, r *http.Request, projectID, path string) {
	s.logger.Debug("request received", "project", projectID, "method", r.Method, "path", path, "query", r.URL.RawQuery, "remote", r.RemoteAddr)

	req, err := s.buildRequest(r, projectID, path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	ctx := r.Context()
	if s.opts.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ActionTimeout)
		defer cancel()
	}

	outcome, err := s.handleUC.Execute(ctx, req, w)
	if err != nil {
		s.writeFailure(w, req, outcome, err)
		return
	}

	if outcome.Kind == dispatch.Unmatched {
		s.logger.Info("request unmatched", "project", projectID, "method", req.Method, "path", path, "candidates", len(outcome.Candidates))
		writeJSON(w, s.opts.UnmatchedStatus, unmatchedResponse{
			Error:      "no_match",
			Message:    "No expectation matched the request",
			Project:    projectID,
			Method:     req.Method,
			Path:       path,
			Candidates: outcome.Candidates,
		})
		return
	}

	s.logger.Info("request matched", "project", projectID, "method", req.Method, "path", path, "expectation", outcome.ExpectationID, "status", outcome.Status)
}

// buildRequest reads at most MaxRawBodyBytes. A larger body is left
// unbuffered for matchers but still replayable in full through BodyStream.
func (s *Server) buildRequest(r *http.Request, projectID, path string) (*dispatch.Request, error) {
	req := &dispatch.Request{
		ProjectID:     projectID,
		Method:        r.Method,
		Path:          path,
		Headers:       r.Header.Clone(),
		Query:         r.URL.Query(),
		BodyAvailable: true,
		Host:          r.Host,
		RemoteAddr:    r.RemoteAddr,
		ReceivedAt:    s.clock.Now(),
	}
	if r.Body == nil || r.Body == http.NoBody {
		return req, nil
	}

	limit := s.opts.MaxRawBodyBytes
	buf, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(buf)) <= limit {
		req.Body = buf
		return req, nil
	}

	s.logger.Debug("request body exceeds buffer limit, body matchers disabled", "project", projectID, "path", path, "limit", limit)
	req.BodyAvailable = false
	req.BodyStream = io.MultiReader(bytes.NewReader(buf), r.Body)
	return req, nil
}

// writeFailure maps a dispatch failure onto a status line, but only while
// the action has not started its response.
func (s *Server) writeFailure(w http.ResponseWriter, req *dispatch.Request, outcome dispatch.Outcome, err error) {
	if errors.Is(err, dispatch.ErrAborted) {
		s.logger.Info("request aborted by client", "project", req.ProjectID, "path", req.Path, "expectation", outcome.ExpectationID)
		return
	}

	s.logger.Error("request failed", "project", req.ProjectID, "method", req.Method, "path", req.Path, "expectation", outcome.ExpectationID, "error", err)
	if outcome.ResponseStarted {
		return
	}

	switch {
	case errors.Is(err, dispatch.ErrActionTimeout):
		writeError(w, http.StatusGatewayTimeout, "action_timeout", err.Error())
	case errors.Is(err, dispatch.ErrActionFailed):
		writeError(w, http.StatusBadGateway, "action_failed", err.Error())
	case errors.Is(err, dispatch.ErrUnresolvedAction):
		writeError(w, http.StatusInternalServerError, "unresolved_action", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
