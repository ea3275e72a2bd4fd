package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/logsink"
	"github.com/sophialabs/mockexpect/internal/infrastructure/ports"
	"github.com/sophialabs/mockexpect/internal/infrastructure/usecases"
)

// DefaultMaxRawBodyBytes is the request body size buffered for matching.
const DefaultMaxRawBodyBytes = 10 << 20 // 10 MiB

// Options tune the mock transport.
type Options struct {
	// MaxRawBodyBytes caps the buffered request body. Larger bodies are
	// streamed to actions but invisible to body matchers.
	MaxRawBodyBytes int64
	// ActionTimeout bounds delay plus action execution. Zero disables it.
	ActionTimeout time.Duration
	// UnmatchedStatus is returned when no expectation matches.
	UnmatchedStatus int
	// DefaultProject, when set, serves requests outside /mock/{project}/.
	DefaultProject string
}

// DurableLogs reads log entries back from a persistent sink.
type DurableLogs interface {
	Recent(ctx context.Context, projectID string, n int64) ([]dispatch.LogEntry, error)
}

// Server routes mock traffic into the dispatch engine and serves the admin API.
type Server struct {
	router   chi.Router
	handleUC *usecases.HandleRequestUseCase
	manageUC *usecases.ManageExpectationsUseCase
	reloadUC *usecases.ReloadExpectationsUseCase
	logs     *logsink.Memory
	durable  DurableLogs
	clock    ports.Clock
	logger   ports.Logger
	opts     Options
}

// NewServer creates a new Server.
func NewServer(
	handleUC *usecases.HandleRequestUseCase,
	manageUC *usecases.ManageExpectationsUseCase,
	reloadUC *usecases.ReloadExpectationsUseCase,
	logs *logsink.Memory,
	clock ports.Clock,
	logger ports.Logger,
	opts Options,
) *Server {
	if opts.MaxRawBodyBytes <= 0 {
		opts.MaxRawBodyBytes = DefaultMaxRawBodyBytes
	}
	if opts.UnmatchedStatus == 0 {
		opts.UnmatchedStatus = http.StatusNotFound
	}
	s := &Server{
		handleUC: handleUC,
		manageUC: manageUC,
		reloadUC: reloadUC,
		logs:     logs,
		clock:    clock,
		logger:   logger,
		opts:     opts,
	}
	s.router = s.buildRouter()
	return s
}

// SetDurableLogs enables ?source=durable on the log endpoints.
func (s *Server) SetDurableLogs(d DurableLogs) {
	s.durable = d
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/__admin", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/projects", s.handleListProjects)
		r.Get("/trace", s.handleGetTrace)
		r.Get("/logs", s.handleGetLogs)
		r.Post("/reload", s.handleReload)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/logs", s.handleGetLogs)
			r.Get("/trace", s.handleGetTrace)
			r.Get("/expectations", s.handleListExpectations)
			r.Post("/expectations", s.handleCreateExpectation)

			r.Route("/expectations/{expectationID}", func(r chi.Router) {
				r.Get("/", s.handleGetExpectation)
				r.Patch("/", s.handleUpdateExpectation)
				r.Delete("/", s.handleDeleteExpectation)

				r.Post("/matchers", s.handleAddMatcher)
				r.Put("/matchers/{matcherID}", s.handleUpdateMatcher)
				r.Delete("/matchers/{matcherID}", s.handleRemoveMatcher)

				r.Post("/actions", s.handleAddAction)
				r.Put("/actions/{actionID}", s.handleUpdateAction)
				r.Delete("/actions/{actionID}", s.handleRemoveAction)
			})
		})
	})

	r.HandleFunc("/mock/{projectID}", s.projectMockHandler)
	r.HandleFunc("/mock/{projectID}/*", s.projectMockHandler)

	r.NotFound(s.notFoundHandler)
	r.MethodNotAllowed(s.notFoundHandler)

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) projectMockHandler(w http.ResponseWriter, r *http.Request) {
	s.serveMock(w, r, chi.URLParam(r, "projectID"), "/"+chi.URLParam(r, "*"))
}

// notFoundHandler routes unprefixed traffic to the default project, if any.
func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.DefaultProject != "" && !strings.HasPrefix(r.URL.Path, "/__admin") {
		s.serveMock(w, r, s.opts.DefaultProject, r.URL.Path)
		return
	}

	s.logger.Info("request received (no route)", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
	writeError(w, http.StatusNotFound, "no_route", "no route for "+r.Method+" "+r.URL.Path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
