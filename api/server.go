/*
server.go - HTTP router and middleware configuration

PURPOSE:

	Configures the HTTP router (chi), middleware stack, and route definitions.
	This is the wiring layer that connects URLs to handlers.

ROUTER: chi

	Chi was chosen for:
	- Lightweight and fast
	- Context-based
	- Middleware support
	- RESTful route patterns

MIDDLEWARE STACK:
 1. Logger:     Request logging
 2. Recoverer:  Panic recovery (500 instead of crash)
 3. RequestID:  Unique ID per request for tracing
 4. Metrics:    Prometheus request counters and latency
 5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:

	/api/projects/*       Project and budget management
	/api/subscriptions/*  Subscription lifecycle
	/api/orders/*         Per-order actions (bulk, freeze, unfreeze)
	/api/freezes/*        Period freezes
	/api/compensation/*   Compensation transactions and summaries
	/api/employees/*      Employee balance, history, freeze info
	/api/dashboard        Aggregated budget/order view
	/api/scenarios/*      Demo scenarios
	/metrics              Prometheus scrape endpoint
	/healthz              Liveness probe

SECURITY NOTE:

	No authentication middleware currently. Tenancy comes from the
	X-Company-ID header; every engine operation re-checks ownership.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "benefit",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern, method and status.",
	}, []string{"route", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "benefit",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// metricsMiddleware records per-route counters and latency. The chi route
// pattern is used as the label, not the raw path, to keep cardinality low.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		requestCount.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Company-ID", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Project routes
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.ListProjects)
			r.Post("/", h.CreateProject)
			r.Get("/{id}", h.GetProject)
			r.Get("/{id}/budget", h.GetProjectBudget)
			r.Get("/{id}/employees", h.ListProjectEmployees)
			r.Get("/{id}/subscriptions", h.ListProjectSubscriptions)
		})

		// Subscription routes
		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", h.CreateSubscription)
			r.Get("/{id}", h.GetSubscription)
			r.Post("/{id}/pause", h.PauseSubscription)
			r.Post("/{id}/resume", h.ResumeSubscription)
			r.Put("/{id}/combo", h.UpdateSubscriptionCombo)
		})

		// Order routes
		r.Route("/orders", func(r chi.Router) {
			r.Post("/bulk", h.BulkAction)
			r.Post("/{id}/freeze", h.FreezeOrder)
			r.Post("/{id}/unfreeze", h.UnfreezeOrder)
		})

		// Freeze routes
		r.Route("/freezes", func(r chi.Router) {
			r.Post("/period", h.FreezePeriod)
		})

		// Compensation routes
		r.Route("/compensation", func(r chi.Router) {
			r.Post("/transactions", h.CreateCompensation)
			r.Get("/summary", h.GetCompensationSummary)
		})

		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/{id}/balance", h.GetEmployeeBalance)
			r.Get("/{id}/transactions", h.ListEmployeeTransactions)
			r.Get("/{id}/freeze-info", h.GetFreezeInfo)
		})

		// Dashboard
		r.Get("/dashboard", h.GetDashboard)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	// Operational endpoints
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
