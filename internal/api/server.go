// Package api exposes the HTTP interface for the ingestion service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openconvocatoria/seace-ingest/internal/config"
	"github.com/openconvocatoria/seace-ingest/internal/metrics"
	"github.com/openconvocatoria/seace-ingest/internal/orchestrator"
	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router     chi.Router
	jobs       seace.JobStore
	dispatcher *orchestrator.Dispatcher
	ids        seace.IDGenerator
	clock      seace.Clock
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobs seace.JobStore,
	dispatcher *orchestrator.Dispatcher,
	ids seace.IDGenerator,
	clock seace.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobs:       jobs,
		dispatcher: dispatcher,
		ids:        ids,
		clock:      clock,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	requestTimeout := cfg.Server.RequestTimeout()
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Get("/details", s.getJobDetails)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// jobRequest is the submission payload. Field names mirror the portal's
// own terminology.
type jobRequest struct {
	Keywords     []string `json:"keywords"`
	ObjectType   string   `json:"objeto_contratacion"`
	Year         int      `json:"anio"`
	MaxProcesses *int     `json:"max_processes"`
	FromDate     string   `json:"fecha_desde"`
	ToDate       string   `json:"fecha_hasta"`
	Entity       *string  `json:"entidad"`
	ProcessType  *string  `json:"tipo_proceso"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	params, err := toExtractionParams(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.enqueueJob(r.Context(), params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(seace.JobStatusPending),
	})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":          job.ID,
		"status":      job.Status,
		"counters":    job.Counters,
		"duration_ms": job.DurationMs(),
		"message":     job.Message,
	})
}

func (s *Server) getJobDetails(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	var statusFilter *seace.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := seace.JobStatus(raw)
		switch status {
		case seace.JobStatusPending, seace.JobStatusRunning, seace.JobStatusCompleted, seace.JobStatusFailed:
			statusFilter = &status
		default:
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	jobs, err := s.jobs.ListJobs(r.Context(), statusFilter, limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) enqueueJob(ctx context.Context, params seace.ExtractionParams) (string, error) {
	jobID, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := seace.Job{
		ID:        jobID,
		Status:    seace.JobStatusPending,
		Params:    params,
		Submitted: now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := seace.QueueItem{
		JobID:     jobID,
		Params:    params,
		Submitted: now.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

const requestDateLayout = "02/01/2006"

func toExtractionParams(req jobRequest) (seace.ExtractionParams, error) {
	params := seace.ExtractionParams{
		Keywords:     req.Keywords,
		Year:         req.Year,
		MaxProcesses: req.MaxProcesses,
		FromDate:     req.FromDate,
		ToDate:       req.ToDate,
		Entity:       req.Entity,
		ProcessType:  req.ProcessType,
	}
	if req.ObjectType != "" {
		objectType := seace.ContractObjectType(req.ObjectType)
		if !objectType.Valid() {
			return seace.ExtractionParams{}, fmt.Errorf("unknown objeto_contratacion %q", req.ObjectType)
		}
		params.ObjectType = objectType
	}
	if req.Year != 0 && (req.Year < 2000 || req.Year > 2100) {
		return seace.ExtractionParams{}, fmt.Errorf("anio %d out of range", req.Year)
	}
	if req.MaxProcesses != nil && *req.MaxProcesses <= 0 {
		return seace.ExtractionParams{}, errors.New("max_processes must be > 0")
	}
	for _, date := range []string{req.FromDate, req.ToDate} {
		if date == "" {
			continue
		}
		if _, err := time.Parse(requestDateLayout, date); err != nil {
			return seace.ExtractionParams{}, fmt.Errorf("invalid date %q, expected dd/mm/yyyy", date)
		}
	}
	return params, nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
