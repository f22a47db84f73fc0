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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kjannette/stationprice/internal/external"
	"github.com/kjannette/stationprice/internal/models"
	"github.com/kjannette/stationprice/internal/service"
)

type AnnotationReader interface {
	Get(ctx context.Context, id models.Identity) (*models.Annotation, error)
	Ping(ctx context.Context) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, vp models.Viewport) (*models.MergedView, error)
}

type PriceWriter interface {
	SubmitPrice(ctx context.Context, sub service.Submission) (*models.Annotation, error)
}

type Options struct {
	Port            int
	CORSAllowOrigin string
	// WriteRatePerMinute caps POST /api/prices across all clients; 0 disables.
	WriteRatePerMinute int
}

type Server struct {
	store        AnnotationReader
	reconciler   Reconciler
	writer       PriceWriter
	writeLimiter *rate.Limiter
	httpServer   *http.Server
	log          zerolog.Logger
}

func NewServer(store AnnotationReader, reconciler Reconciler, writer PriceWriter, opts Options, log zerolog.Logger) *Server {
	s := &Server{
		store:      store,
		reconciler: reconciler,
		writer:     writer,
		log:        log,
	}
	if opts.WriteRatePerMinute > 0 {
		s.writeLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.WriteRatePerMinute)), opts.WriteRatePerMinute)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(corsMiddleware(opts.CORSAllowOrigin))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/viewport", s.handleViewport)
		r.Get("/prices/*", s.handleGetPrice)
		r.With(s.throttleWrites).Post("/prices", s.handleSubmitPrice)
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("REST API server started")
	s.log.Info().Msgf("health check: http://localhost%s/health", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := s.log.Info()
		if status >= 500 {
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func corsMiddleware(allowOrigin string) func(http.Handler) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) throttleWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.writeLimiter != nil && !s.writeLimiter.Allow() {
			res := s.writeLimiter.Reserve()
			delay := res.Delay()
			res.Cancel()
			w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "too many price submissions, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeCodedError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// writeServiceError maps domain errors onto status codes. Messages of 5xx
// responses never carry the underlying error text.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidCoordinate),
		errors.Is(err, models.ErrInvalidIdentity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, external.ErrGatewayUnavailable):
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("poi feed unavailable")
		writeCodedError(w, http.StatusBadGateway, "gateway_unavailable", "POI feed unavailable")
	case errors.Is(err, external.ErrGatewayParse):
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("poi feed returned an unreadable response")
		writeCodedError(w, http.StatusBadGateway, "gateway_parse_error", "POI feed returned an unreadable response")
	case errors.Is(err, context.Canceled):
		// client went away
		w.WriteHeader(499)
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeCodedError(w, http.StatusBadGateway, "store_unavailable", "annotation store unavailable")
	}
}
