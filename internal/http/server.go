package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"saman/internal/analytics"
	"saman/internal/cache"
	"saman/internal/ledger"
	"saman/internal/log"
)

const (
	dashboardCacheSize = 64
	dashboardCacheTTL  = 5 * time.Minute
	cacheCleanupEvery  = time.Minute
)

type Server struct {
	http.Server
	ledger      *ledger.Ledger
	logger      *log.Logger
	structured  *log.StructuredLogger
	rateLimiter *rateLimiter
	metrics     *securityMetrics

	// Dashboards are keyed by ledger revision, so mutations never serve stale data.
	dashboards *cache.LRUCache[analytics.Dashboard]
	caches     *cache.Manager

	now     func() time.Time
	started time.Time

	shutdownOnce sync.Once
}

// Option customizes a Server.
type Option func(*Server)

// WithClock sets the source of "now" used for default view references.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRateLimit caps mutating requests per client IP per window.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(s *Server) {
		s.rateLimiter.stop()
		s.rateLimiter = newRateLimiter(limit, window)
	}
}

// NewServer wires the API routes for l on addr.
func NewServer(addr string, l *ledger.Ledger, logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		ledger:      l,
		logger:      logger,
		structured:  log.NewStructuredLogger(logger),
		rateLimiter: newRateLimiter(defaultRateLimit, defaultRateWindow),
		metrics:     &securityMetrics{},
		dashboards:  cache.NewLRUCache[analytics.Dashboard](dashboardCacheSize, dashboardCacheTTL),
		caches:      cache.NewManager(logger),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.now()

	s.caches.Register(s.dashboards)
	s.caches.StartCleanup(cacheCleanupEvery)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("GET /api/budget", s.handleGetBudget)
	mux.HandleFunc("PUT /api/budget", s.handleUpdateBudget)
	mux.HandleFunc("GET /export.csv", s.handleExport)

	s.Addr = addr
	s.Handler = s.middleware(mux)
	s.ReadHeaderTimeout = 5 * time.Second
	s.ReadTimeout = 10 * time.Second
	s.WriteTimeout = 15 * time.Second
	s.IdleTimeout = 60 * time.Second
	return s
}

// middleware attaches a request-scoped logger, security headers, suspicious
// request accounting, mutation rate limiting and request logging.
func (s *Server) middleware(next http.Handler) http.Handler {
	withLogger := log.Middleware(s.logger)
	withRequestID := log.RequestIDMiddleware(requestID)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		clientIP := extractClientIP(r)

		s.structured.LogHTTPStart(ctx, r, clientIP)
		setSecurityHeaders(w.Header())

		if detectSuspiciousRequest(r, s.metrics) {
			log.FromContext(ctx).WarnContext(ctx, "Suspicious request",
				log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
					WithClientIP(clientIP).ToSlice()...)
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		if isMutation(r.Method) && !s.rateLimiter.allow(clientIP, s.metrics) {
			log.FromContext(ctx).WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			TooManyRequestsError("60").Write(rw)
		} else {
			next.ServeHTTP(rw, r)
		}

		s.structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})

	return withLogger(withRequestID(inner))
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Shutdown stops background goroutines and gracefully shuts the listener down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		s.caches.Stop()
	})
	return s.Server.Shutdown(ctx)
}
