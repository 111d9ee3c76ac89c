package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	"recur/internal/core"
	"recur/internal/log"
	"recur/internal/middleware/ratelimit"
	"recur/internal/middleware/security"
	"recur/internal/middleware/trace"
	"recur/internal/recurring"
	"recur/internal/services"
)

// MaxBodyBytes bounds the size of an ingestion request.
const MaxBodyBytes = 10 << 20

type (
	// Ingester stores a JSON batch of transactions.
	Ingester interface {
		IngestJSON(ctx context.Context, body []byte) (services.IngestResult, error)
	}

	// Detector returns the recurring series of a user.
	Detector interface {
		Detect(ctx context.Context, userID string) (recurring.Result, error)
	}

	// TransactionLister reads stored history and reports store health.
	TransactionLister interface {
		ListByUser(ctx context.Context, userID string) ([]core.Transaction, error)
		Ping(ctx context.Context) error
	}
)

// Options configures the HTTP surface.
type Options struct {
	Addr               string
	RequestTimeout     time.Duration
	RateLimitPerMinute int
	AllowedOrigins     []string
	Logger             *log.Logger
}

type Server struct {
	http.Server
	ingestion Ingester
	detection Detector
	lister    TransactionLister
	logger    *log.Logger
	errors    *log.StructuredLogger

	rateLimiter     *ratelimit.Limiter
	traceMiddleware *trace.Middleware
	clientIP        *security.ClientIPResolver
	metrics         *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, ingestion Ingester, detection Detector, lister TransactionLister) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	s := &Server{
		ingestion:   ingestion,
		detection:   detection,
		lister:      lister,
		logger:      logger.WithComponent(log.ComponentHTTP),
		errors:      log.NewStructuredLogger(logger),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		clientIP:    security.NewClientIPResolver(),
		metrics:     newAppMetrics(),
	}
	s.traceMiddleware = trace.NewMiddleware(s.clientIP.ClientIP, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /transactions", s.handleIngest)
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("GET /recurring", s.handleRecurring)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	handler := timeoutHandler(mux, opts.RequestTimeout)
	handler = s.rateLimiter.Middleware(s.clientIP.ClientIP, s.handleRateLimited, http.MethodPost)(handler)
	if len(opts.AllowedOrigins) > 0 {
		handler = newCORS(opts.AllowedOrigins).Handler(handler)
	}
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.RequestTimeout + 5*time.Second,
		WriteTimeout:      opts.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// timeoutHandler answers requests running past dt with a JSON 503. The
// Content-Type is preset because http.TimeoutHandler writes its body without
// one; handlers that finish in time overwrite it with their own.
func timeoutHandler(h http.Handler, dt time.Duration) http.Handler {
	th := http.TimeoutHandler(h, dt, `{"msg":"`+msgServiceUnavailable+`"}`)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		th.ServeHTTP(w, r)
	})
}

func newCORS(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			trace.RequestIDHeader,
		},
		ExposedHeaders: []string{trace.RequestIDHeader},
		MaxAge:         300,
	})
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
