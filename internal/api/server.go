// Package api exposes Safe analysis over a small JSON REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/khanhnv2901/safe-audit/internal/api/middleware"
	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
	"github.com/khanhnv2901/safe-audit/internal/domain/check"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

type HealthService interface {
	Check(ctx context.Context) error
}

type JobService interface {
	StartJob(ctx context.Context, req JobRequest) (*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]Job, error)
	Subscribe() (chan Job, func())
}

type Config struct {
	Analyzer    analysis.Analyzer
	Registry    *chain.Registry
	Health      HealthService
	Jobs        JobService
	AuthToken   string
	Logger      *zap.Logger
	CORSOrigins []string // Allowed CORS origins (empty = allow all)
	RateLimit   int      // Requests per second per IP (0 = disabled)
	RateBurst   int      // Burst size for rate limiter
}

type Server struct {
	cfg      Config
	router   chi.Router
	limiters *middleware.IPRateLimiter
}

// ChainInfo is the public view of a registry entry.
type ChainInfo struct {
	ID          uint64 `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	Native      string `json:"native_symbol,omitempty"`
}

type errorBody struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	srv := &Server{cfg: cfg}
	if cfg.RateLimit > 0 {
		srv.limiters = middleware.NewIPRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiters != nil {
		s.limiters.Stop()
	}
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(s.cfg.Logger))
	r.Use(middleware.RateLimit(s.limiters, s.rejectRateLimited))
	r.Use(middleware.CORS(s.cfg.CORSOrigins))
	r.Use(middleware.Auth(s.cfg.AuthToken, func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
	}))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(s.methodNotAllowed)

	r.Route("/api/v1", s.v1)
	// unversioned alias
	r.Route("/api", s.v1)
	s.router = r
}

func (s *Server) v1(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/chains", s.handleChains)
	r.Get("/rules", s.handleRules)
	r.Get("/safes/{chain}/{address}", s.handleAnalyze)
	r.Get("/jobs", s.handleListJobs)
	r.Post("/jobs", s.handleCreateJob)
	r.Get("/jobs/{id}", s.handleJobByID)
	r.Get("/jobs-stream", s.handleJobStream)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Check(r.Context()); err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Registry == nil {
		writeJSON(w, http.StatusOK, []ChainInfo{})
		return
	}
	chains := s.cfg.Registry.All()
	out := make([]ChainInfo, len(chains))
	for i, c := range chains {
		out[i] = ChainInfo{ID: c.ID, Slug: c.Slug, Name: c.Name, ExplorerURL: c.ExplorerURL, Native: c.NativeCurrencySymbol}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, check.Rules())
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Analyzer == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("analysis service not available"))
		return
	}

	chainID, err := s.resolveChain(chi.URLParam(r, "chain"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	probe := false
	if q := r.URL.Query().Get("probe"); q != "" {
		if probe, err = strconv.ParseBool(q); err != nil {
			s.writeError(w, r, http.StatusBadRequest, errors.New("probe must be a boolean"))
			return
		}
	}

	report, err := s.cfg.Analyzer.Analyze(r.Context(), chainID, chi.URLParam(r, "address"), analysis.Options{ProbeMultiChain: probe})
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// resolveChain accepts a numeric id or a registry slug. Unknown numeric ids
// pass through so the analyzer reports them as unsupported.
func (s *Server) resolveChain(key string) (uint64, error) {
	if s.cfg.Registry != nil {
		if desc, ok := s.cfg.Registry.Resolve(key); ok {
			return desc.ID, nil
		}
	}
	id, err := strconv.ParseUint(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedChain, key)
	}
	return id, nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	limit := 25
	if q := r.URL.Query().Get("limit"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	jobs, err := s.cfg.Jobs.ListJobs(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	job, err := s.cfg.Jobs.StartJob(r.Context(), req)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	job, err := s.cfg.Jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil || job == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job not found"))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	updates, unsubscribe := s.cfg.Jobs.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	ctx := r.Context()
	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			// stream progress only; clients fetch outcomes from /jobs/{id}
			job.Outcomes = nil
			payload, err := json.Marshal(job)
			if err != nil {
				s.requestLogger(r).Error("failed to marshal job", zap.Error(err))
				continue
			}
			for _, chunk := range [][]byte{[]byte("event: job\ndata: "), payload, []byte("\n\n")} {
				if !s.writeStreamChunk(w, chunk) {
					return
				}
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request, clientIP string) {
	s.requestLogger(r).Warn("rate_limit_exceeded", zap.String("client_ip", clientIP))
	s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
}

// statusFor maps analysis errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domainerrors.ErrInvalidAddress), errors.Is(err, domainerrors.ErrUnsupportedChain):
		return http.StatusBadRequest
	case errors.Is(err, domainerrors.ErrNotASafe), errors.Is(err, domainerrors.ErrMalformed):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domainerrors.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes a JSON error body. Server-side failures are logged and
// replaced with a generic message so upstream URLs and keys never leak.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	body := errorBody{Error: err.Error(), Category: domainerrors.Category(err)}
	if body.Category == "Error" {
		body.Category = ""
	}

	if status >= 500 {
		s.requestLogger(r).Error("request failed", zap.Error(err), zap.Int("status", status))
		switch status {
		case http.StatusBadGateway:
			body.Error = "upstream chain node unavailable"
		case http.StatusGatewayTimeout:
			body.Error = "analysis timed out"
		case http.StatusServiceUnavailable:
			body.Error = "service unavailable"
		default:
			body.Error = "internal server error"
		}
	}
	writeJSON(w, status, body)
}

// requestLogger creates a logger with request context (request ID, method, path)
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if s.cfg.Logger == nil {
		return zap.NewNop()
	}
	return s.cfg.Logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (s *Server) writeStreamChunk(w http.ResponseWriter, data []byte) bool {
	if _, err := w.Write(data); err != nil {
		if s.cfg.Logger != nil {
			s.cfg.Logger.Error("failed to write stream chunk", zap.Error(err))
		}
		return false
	}
	return true
}
