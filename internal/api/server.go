package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lox/recoverytrack/internal/aggregate"
	"github.com/lox/recoverytrack/internal/history"
	"github.com/lox/recoverytrack/internal/identity"
	"github.com/lox/recoverytrack/internal/ingest"
	"github.com/lox/recoverytrack/internal/insight"
	"github.com/lox/recoverytrack/internal/metrics"
	"github.com/lox/recoverytrack/internal/normalize"
	"github.com/lox/recoverytrack/internal/store"
)

type Server struct {
	store      *store.Store
	auth       *identity.Service
	recorder   *ingest.Recorder
	insight    *insight.Generator
	port       string
	loc        *time.Location
	statistic  string
	windowDays int
	policy     history.NotFoundPolicy
	fallback   normalize.Fallback
	now        func() time.Time
	log        *zap.Logger
}

type Option func(*Server)

// WithStatistic sets the default statistic for requests that don't name one.
func WithStatistic(name string) Option {
	return func(s *Server) { s.statistic = name }
}

func WithWindowDays(days int) Option {
	return func(s *Server) { s.windowDays = days }
}

// WithInsight enables /api/insight.
func WithInsight(g *insight.Generator) Option {
	return func(s *Server) { s.insight = g }
}

func WithNotFoundPolicy(p history.NotFoundPolicy) Option {
	return func(s *Server) { s.policy = p }
}

// WithFallback sets what unreadable numeric fields become when records are
// normalized.
func WithFallback(fb normalize.Fallback) Option {
	return func(s *Server) { s.fallback = fb }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(st *store.Store, auth *identity.Service, port string, loc *time.Location, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		store:      st,
		auth:       auth,
		recorder:   ingest.NewRecorder(st, logger),
		port:       port,
		loc:        loc,
		statistic:  "median",
		windowDays: aggregate.DefaultWindowDays,
		now:        time.Now,
		log:        logger.With(zap.String("component", "api")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handle(mux, "POST /api/auth/signup", s.handleSignUp)
	s.handle(mux, "POST /api/auth/signin", s.handleSignIn)
	s.handle(mux, "POST /api/auth/signout", s.handleSignOut)

	s.handle(mux, "GET /api/history", s.handleHistory)
	s.handle(mux, "GET /api/history/{date}", s.handleDay)
	s.handle(mux, "GET /api/calendar", s.handleCalendar)
	s.handle(mux, "GET /api/chart", s.handleChartData)
	s.handle(mux, "GET /chart", s.handleChartPage)
	s.handle(mux, "POST /api/records", s.handleCreateRecord)
	s.handle(mux, "GET /api/profile", s.handleGetProfile)
	s.handle(mux, "PUT /api/profile", s.handlePutProfile)
	s.handle(mux, "GET /api/insight", s.handleInsight)
	return mux
}

// handle registers h and counts its responses by pattern and status.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.HTTPRequestsTotal.WithLabelValues(pattern, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info("listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
