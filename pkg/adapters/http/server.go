// Package http exposes the runtime control surface over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aretw0/autotron/internal/logging"
	"github.com/aretw0/autotron/internal/presentation/graph"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/node"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes bounds uploaded graph documents.
const maxBodyBytes = 4 << 20

// Runtime is what the control surface drives. *autotron.Service implements it.
type Runtime interface {
	Status() domain.Status
	Start(ctx context.Context) error
	Stop()
	Tick(ctx context.Context) error

	Load(ctx context.Context, doc *domain.Document) error
	LoadPath(ctx context.Context, path string) error
	LoadNamed(ctx context.Context, name string) error
	HotReload(ctx context.Context, doc *domain.Document) (*domain.DocumentDiff, error)
	Reload(ctx context.Context) (*domain.DocumentDiff, error)
	Save(ctx context.Context, name string) error
	Graphs(ctx context.Context) ([]string, error)
	PutGraph(ctx context.Context, name string, doc *domain.Document) (*domain.DocumentDiff, error)
	CurrentDocument() (*domain.Document, error)
	Report() (domain.GraphReport, error)
	NodeTypes() []string

	Outputs() map[string]node.Outputs
	Failed() []string
	Commands(entityID string, limit int) []domain.TrackedCommand
	Pending(entityID string) []domain.TrackedCommand
	Expectations() map[string]domain.Expectation
	Audit(ctx context.Context) domain.AuditReport
	Devices() []domain.AuditRecord
	Ingest(u domain.StateUpdate) bool

	Heartbeat()
	ReleaseFrontend()

	Subscribe() (<-chan domain.Status, func())
	MetricsHandler() http.Handler
}

// Server holds the HTTP handlers.
type Server struct {
	runtime Runtime
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the router for rt.
func NewHandler(rt Runtime, opts ...Option) http.Handler {
	s := &Server{runtime: rt, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/status", s.GetStatus)
	r.Get("/events", s.SubscribeEvents)
	r.Handle("/metrics", rt.MetricsHandler())

	r.Post("/start", s.Start)
	r.Post("/stop", s.Stop)
	r.Post("/tick", s.Tick)
	r.Post("/load", s.Load)
	r.Post("/reload", s.Reload)

	r.Get("/graph", s.GetGraph)
	r.Get("/graph/mermaid", s.GetMermaid)
	r.Get("/graph/report", s.GetReport)
	r.Get("/node-types", s.GetNodeTypes)
	r.Route("/graphs", func(r chi.Router) {
		r.Get("/", s.ListGraphs)
		r.Put("/{name}", s.PutGraph)
		r.Post("/{name}/save", s.SaveGraph)
	})

	r.Get("/outputs", s.GetOutputs)
	r.Get("/commands", s.GetCommands)
	r.Get("/commands/pending", s.GetPending)
	r.Get("/expectations", s.GetExpectations)
	r.Post("/audit", s.RunAudit)
	r.Get("/devices", s.GetDevices)
	r.Post("/devices/{entity}/state", s.PostDeviceState)

	r.Post("/frontend/heartbeat", s.Heartbeat)
	r.Post("/frontend/release", s.Release)
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus handles GET /status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runtime.Status())
}

// Start handles POST /start.
func (s *Server) Start(w http.ResponseWriter, r *http.Request) {
	// The request context ends with the response; the runtime must outlive it.
	if err := s.runtime.Start(context.WithoutCancel(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.runtime.Status())
}

// Stop handles POST /stop.
func (s *Server) Stop(w http.ResponseWriter, r *http.Request) {
	s.runtime.Stop()
	s.writeJSON(w, http.StatusOK, s.runtime.Status())
}

// Tick handles POST /tick, forcing one evaluation pass.
func (s *Server) Tick(w http.ResponseWriter, r *http.Request) {
	if err := s.runtime.Tick(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.runtime.Outputs())
}

// LoadRequest selects a graph by file path, stored name or inline document.
type LoadRequest struct {
	Path     string           `json:"path,omitempty"`
	Name     string           `json:"name,omitempty"`
	Document *domain.Document `json:"document,omitempty"`
}

// Load handles POST /load.
func (s *Server) Load(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	var err error
	switch {
	case req.Document != nil:
		err = s.runtime.Load(r.Context(), req.Document)
	case req.Name != "":
		err = s.runtime.LoadNamed(r.Context(), req.Name)
	case req.Path != "":
		err = s.runtime.LoadPath(r.Context(), req.Path)
	default:
		err = badRequest("one of path, name or document is required")
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.runtime.Status())
}

// Reload handles POST /reload. With a document body it hot reloads that
// document, otherwise it re-reads the active stored graph.
func (s *Server) Reload(w http.ResponseWriter, r *http.Request) {
	var diff *domain.DocumentDiff
	var err error

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, badRequest("failed to read body"))
		return
	}
	if len(body) == 0 {
		diff, err = s.runtime.Reload(r.Context())
	} else {
		var doc *domain.Document
		doc, err = domain.ParseDocument(body)
		if err == nil {
			diff, err = s.runtime.HotReload(r.Context(), doc)
		}
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, diff)
}

// GetGraph handles GET /graph, returning the live document.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	doc, err := s.runtime.CurrentDocument()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

// GetMermaid handles GET /graph/mermaid.
func (s *Server) GetMermaid(w http.ResponseWriter, r *http.Request) {
	doc, err := s.runtime.CurrentDocument()
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := graph.GenerateMermaid(doc, &graph.GraphOverlay{
		Outputs: s.runtime.Outputs(),
		Failed:  s.runtime.Failed(),
	})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, out)
}

// GetReport handles GET /graph/report.
func (s *Server) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.runtime.Report()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// GetNodeTypes handles GET /node-types.
func (s *Server) GetNodeTypes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runtime.NodeTypes())
}

// ListGraphs handles GET /graphs.
func (s *Server) ListGraphs(w http.ResponseWriter, r *http.Request) {
	names, err := s.runtime.Graphs(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, names)
}

// PutGraph handles PUT /graphs/{name}.
func (s *Server) PutGraph(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, badRequest("failed to read body"))
		return
	}
	doc, err := domain.ParseDocument(body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	diff, err := s.runtime.PutGraph(r.Context(), chi.URLParam(r, "name"), doc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if diff == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, diff)
}

// SaveGraph handles POST /graphs/{name}/save, storing the live graph.
func (s *Server) SaveGraph(w http.ResponseWriter, r *http.Request) {
	if err := s.runtime.Save(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetOutputs handles GET /outputs.
func (s *Server) GetOutputs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runtime.Outputs())
}

// GetCommands handles GET /commands?entity=&limit=.
func (s *Server) GetCommands(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, badRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, nonNil(s.runtime.Commands(r.URL.Query().Get("entity"), limit)))
}

// GetPending handles GET /commands/pending?entity=.
func (s *Server) GetPending(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, nonNil(s.runtime.Pending(r.URL.Query().Get("entity"))))
}

// GetExpectations handles GET /expectations.
func (s *Server) GetExpectations(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runtime.Expectations())
}

// RunAudit handles POST /audit.
func (s *Server) RunAudit(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runtime.Audit(r.Context()))
}

// GetDevices handles GET /devices.
func (s *Server) GetDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, nonNil(s.runtime.Devices()))
}

// IngestResponse reports whether a posted state update confirmed a command.
type IngestResponse struct {
	Confirmed bool `json:"confirmed"`
}

// PostDeviceState handles POST /devices/{entity}/state. The body is the
// reported attribute map of the entity.
func (s *Server) PostDeviceState(w http.ResponseWriter, r *http.Request) {
	var attrs domain.Attributes
	if err := decode(r, &attrs); err != nil {
		s.writeError(w, err)
		return
	}
	if len(attrs) == 0 {
		s.writeError(w, badRequest("attributes are required"))
		return
	}
	confirmed := s.runtime.Ingest(domain.StateUpdate{
		EntityID:   chi.URLParam(r, "entity"),
		Attributes: attrs,
	})
	s.writeJSON(w, http.StatusOK, IngestResponse{Confirmed: confirmed})
}

// Heartbeat handles POST /frontend/heartbeat.
func (s *Server) Heartbeat(w http.ResponseWriter, r *http.Request) {
	s.runtime.Heartbeat()
	w.WriteHeader(http.StatusNoContent)
}

// Release handles POST /frontend/release.
func (s *Server) Release(w http.ResponseWriter, r *http.Request) {
	s.runtime.ReleaseFrontend()
	w.WriteHeader(http.StatusNoContent)
}

// SubscribeEvents handles GET /events (SSE): one status snapshot per change.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, cancel := s.runtime.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(status)
			if err != nil {
				s.logger.Error("Failed to encode status event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// -- Helpers --

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr), errors.Is(err, domain.ErrGraphLoad), errors.Is(err, domain.ErrInvalidGraphName):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGraphNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoGraphLoaded):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "err", err)
	}
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
