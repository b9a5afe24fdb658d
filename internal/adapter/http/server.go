package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/lead-finder/internal/adapter/overpass"
	"github.com/couchcryptid/lead-finder/internal/domain"
	"github.com/couchcryptid/lead-finder/internal/export"
	"github.com/couchcryptid/lead-finder/internal/pipeline"
)

// maxBodyBytes caps request bodies on the API routes.
const maxBodyBytes = 1 << 16

// LeadService is the part of the pipeline the API exposes.
type LeadService interface {
	Search(ctx context.Context, q pipeline.Query) (pipeline.SearchResult, error)
	RecordOutcome(ctx context.Context, leadID, outcome string) (*domain.CallRecord, error)
	History(ctx context.Context, leadID string) ([]domain.CallRecord, error)
	Verticals() []domain.Vertical
	Refresh(ctx context.Context) error
	CheckReadiness(ctx context.Context) error
}

// Server exposes the lead API alongside health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	svc        LeadService
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewServer creates an HTTP server. Searches hit two upstream APIs, so the
// write timeout is sized for the slowest Overpass query.
func NewServer(addr string, svc LeadService, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(svc))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Get("/verticals", s.handleVerticals)
		r.Post("/searches", s.handleSearch)
		r.Post("/cache/refresh", s.handleRefresh)
		r.Get("/leads/{kind}/{id}/calls", s.handleHistory)
		r.Post("/leads/{kind}/{id}/calls", s.handleRecordCall)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type verticalResponse struct {
	Name      string            `json:"name"`
	Predicate map[string]string `json:"tags"`
}

func (s *Server) handleVerticals(w http.ResponseWriter, _ *http.Request) {
	verticals := s.svc.Verticals()
	out := make([]verticalResponse, len(verticals))
	for i, v := range verticals {
		out[i] = verticalResponse{Name: v.Name, Predicate: v.Predicate}
	}
	writeJSON(w, http.StatusOK, map[string]any{"verticals": out})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q pipeline.Query
	if !s.decode(w, r, &q) {
		return
	}

	res, err := s.svc.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="leads.csv"`)
		if err := export.WriteCSV(w, res.Leads); err != nil {
			s.logger.Warn("csv export interrupted", "error", err)
		}
		return
	}

	resp := searchResponse{SearchResult: res}
	if len(res.Leads) > 0 {
		resp.SMS = res.Leads[0].SMS()
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchResponse struct {
	pipeline.SearchResult
	// SMS is the text-message pitch for the top lead.
	SMS string `json:"sms,omitempty"`
}

type callRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=Uncalled Connected Voicemail 'No Answer'"`
}

func (s *Server) handleRecordCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec, err := s.svc.RecordOutcome(r.Context(), leadID(r), req.Outcome)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := leadID(r)
	calls, err := s.svc.History(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if calls == nil {
		calls = []domain.CallRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"osm_id": id, "calls": calls})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Refresh(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// leadID rebuilds "node/123" style ids from the two path segments.
func leadID(r *http.Request) string {
	return chi.URLParam(r, "kind") + "/" + chi.URLParam(r, "id")
}

// decode reads a JSON body into v and validates it, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body: " + err.Error()})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, validationResponse(err))
		return false
	}
	return true
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func validationResponse(err error) errorResponse {
	resp := errorResponse{Error: "validation failed"}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			resp.Fields[fe.Field()] = fe.Tag()
		}
	}
	return resp
}

// statusFor maps pipeline errors to HTTP status codes. Anything unrecognized
// is an upstream or storage failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLocationNotFound):
		return http.StatusNotFound
	case errors.Is(err, overpass.ErrBadQuery):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
