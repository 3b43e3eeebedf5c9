// Package api serves the operator API: domain status, manual failover
// triggers, run history and SLA reports.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/FairForge/warmstandby/internal/ha"
	"github.com/FairForge/warmstandby/internal/metrics"
)

// Failover is the orchestrator surface the API drives. DROrchestrator
// implements it.
type Failover interface {
	Start(ctx context.Context, domain ha.FailoverDomain, req ha.TriggerRequest) (*ha.Run, error)
	Rearm(domain string)
	FailedOver(domain string) bool
	InFlight(domain string) (string, bool)
	GetEvents(limit int) []ha.DREvent
}

// Domains resolves configured domains and their monitor state. HealthMonitor
// implements it.
type Domains interface {
	Domain(name string) (ha.FailoverDomain, bool)
	Statuses() []ha.DomainStatus
}

// Options configures the server
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	JWTSecret    string
	TriggerRate  float64
	TriggerBurst int
	Version      string
}

// Deps are the collaborators behind the handlers. Tracker and Recorder may
// be nil. Runs started through the API are bound to RunContext, not to the
// request; it defaults to context.Background.
type Deps struct {
	RunContext context.Context
	Failover   Failover
	Domains    Domains
	Runs       ha.RunStore
	Tracker    *ha.RTORPOTracker
	Recorder   *metrics.Recorder
}

type Server struct {
	opts       Options
	deps       Deps
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
	auth       *TokenAuth
	limiter    *RateLimiter
	startTime  time.Time
}

func NewServer(opts Options, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if deps.RunContext == nil {
		deps.RunContext = context.Background()
	}

	s := &Server{
		opts:      opts,
		deps:      deps,
		logger:    logger,
		router:    mux.NewRouter(),
		auth:      NewTokenAuth(opts.JWTSecret),
		limiter:   NewRateLimiter(opts.TriggerRate, opts.TriggerBurst),
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID, middleware.RealIP, s.loggingMiddleware, middleware.Recoverer)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")
	if s.deps.Recorder != nil {
		s.router.Handle("/metrics", s.deps.Recorder.Handler()).Methods("GET")
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/domains", s.handleListDomains).Methods("GET")
	v1.HandleFunc("/domains/{domain}/runs", s.handleListRuns).Methods("GET")
	v1.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
	v1.HandleFunc("/events", s.handleEvents).Methods("GET")
	v1.HandleFunc("/sla", s.handleSLA).Methods("GET")

	v1.Handle("/domains/{domain}/failover",
		s.requireOperator(s.rateLimit(http.HandlerFunc(s.handleTriggerFailover)))).Methods("POST")
	v1.Handle("/domains/{domain}/rearm",
		s.requireOperator(http.HandlerFunc(s.handleRearm))).Methods("POST")
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("starting api server", zap.String("addr", s.opts.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
