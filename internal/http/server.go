// Package http serves the ledger's JSON API.
package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"ledgerbook/internal/backup"
	"ledgerbook/internal/category"
	"ledgerbook/internal/ledger"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/middleware/ratelimit"
	"ledgerbook/internal/middleware/security"
	"ledgerbook/internal/middleware/trace"
	"ledgerbook/internal/services"
)

// Deps are the services behind the API.
type Deps struct {
	Registry *category.Registry
	Ledger   *ledger.Service
	Views    *services.Views
	Backup   *backup.Service

	Logger *applog.Logger
	// Ready reports whether the store can serve requests. Nil means always ready.
	Ready func(context.Context) error
	// Location is used for month boundaries and bare dates. Nil means UTC.
	Location *time.Location
	// WriteRateLimit caps writes per client per minute; zero disables it.
	WriteRateLimit int
	Now            func() time.Time
}

type Server struct {
	http.Server

	deps         Deps
	loc          *time.Location
	now          func() time.Time
	metrics      *Metrics
	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.DefaultConfig())
	}
	s := &Server{
		deps:    deps,
		loc:     deps.Location,
		now:     deps.Now,
		metrics: NewMetrics(),
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if deps.WriteRateLimit > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.WriteRateLimit, Now: deps.Now})
		s.metrics.Registerer().MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "ledger_http_rate_limited_total",
			Help: "Write requests refused by the rate limiter",
		}, func() float64 { return float64(s.limiter.Rejected()) }))
	}
	deps.Ledger.OnChange(s.metrics.ObserveChange)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Metrics exposes the server registry.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(applog.Middleware(s.deps.Logger.WithComponent(applog.ComponentHTTP)))
	r.Use(trace.NewMiddleware(s.deps.Logger, s.deps.Now).Middleware)
	r.Use(chimw.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limitWrites)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Post("/", s.handleCreateCategory)
			r.Post("/order", s.handleReorderCategories)
			r.Post("/order/reset", s.handleResetCategoryOrder)
			r.Put("/{id}", s.handleUpdateCategory)
			r.Delete("/{id}", s.handleDeleteCategory)
			r.Put("/{id}/budget", s.handleSetBudget)
			r.Get("/{id}/budget/history", s.handleBudgetHistory)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Post("/", s.handleCreateTransaction)
			r.Get("/{id}", s.handleGetTransaction)
			r.Put("/{id}", s.handleUpdateTransaction)
			r.Delete("/{id}", s.handleDeleteTransaction)
		})
		r.Get("/orphans", s.handleOrphans)

		r.Get("/loans", s.handleLoans)
		r.Get("/loans/people", s.handleLoanPeople)
		r.Get("/assets", s.handleAssets)
		r.Put("/assets/grouping/{categoryId}", s.handleSetAssetGrouping)
		r.Get("/fuel", s.handleFuel)
		r.Get("/budgets", s.handleBudgets)
		r.Get("/budgets/{categoryId}", s.handleBudget)
		r.Get("/suggestions", s.handleSuggestions)

		r.Get("/export.csv", s.handleExportCSV)
		r.Get("/backup", s.handleBackup)
		r.Post("/restore", s.handleRestore)
	})
	return r
}

// limitWrites applies the rate limiter to every non-read method.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	limited := s.limiter.Middleware(clientIP, func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
	})(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

// clientIP strips the port; chimw.RealIP has already applied proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			writeMessage(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown stops the limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}
