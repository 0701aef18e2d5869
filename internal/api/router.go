package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"postpilot/internal/ai"
	"postpilot/internal/autopilot"
	"postpilot/internal/metrics"
	"postpilot/internal/publisher"
	"postpilot/internal/store"
)

// ProviderHealth is implemented by the text and image gateways.
type ProviderHealth interface {
	Health() ai.HealthSnapshot
	Reset()
}

// PublishTicker runs one publisher pass on demand.
type PublishTicker interface {
	Tick(ctx context.Context) (publisher.TickReport, error)
}

// Options wires a Server.
type Options struct {
	Addr      string
	AuthToken string

	Store        *store.Store
	Scheduler    *autopilot.Scheduler
	Orchestrator *autopilot.Orchestrator
	Publisher    PublishTicker
	Providers    map[string]ProviderHealth
	// MCP is mounted at /mcp when set.
	MCP http.Handler

	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Location *time.Location
}

// Server holds the HTTP server state.
type Server struct {
	httpServer   *http.Server
	router       *chi.Mux
	store        *store.Store
	scheduler    *autopilot.Scheduler
	orchestrator *autopilot.Orchestrator
	publisher    PublishTicker
	providers    map[string]ProviderHealth
	mcp          http.Handler
	metrics      *metrics.Metrics
	logger       *slog.Logger
	location     *time.Location
	authToken    string
}

// NewServer constructs the HTTP API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	location := opts.Location
	if location == nil {
		location = time.Local
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(opts.Metrics.Middleware)

	s := &Server{
		router:       router,
		store:        opts.Store,
		scheduler:    opts.Scheduler,
		orchestrator: opts.Orchestrator,
		publisher:    opts.Publisher,
		providers:    opts.Providers,
		mcp:          opts.MCP,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "api"),
		location:     location,
		authToken:    opts.AuthToken,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", s.metrics.Handler())

	if s.mcp != nil {
		var mcpHandler = s.mcp
		if s.authToken != "" {
			mcpHandler = AuthMiddleware(s.authToken)(mcpHandler)
		}
		s.router.Handle("/mcp", mcpHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Route("/preview", func(r chi.Router) {
			r.Post("/cron", s.handleCronPreview)
			r.Get("/mix", s.handleMixPreview)
			r.Post("/schedule", s.handleSchedulePreview)
		})

		r.Route("/plans", func(r chi.Router) {
			r.Get("/", s.handleListPlans)
			r.Post("/", s.handleCreatePlan)

			r.Route("/{planID}", func(r chi.Router) {
				r.Get("/", s.handleGetPlan)
				r.Patch("/", s.handleUpdatePlan)
				r.Delete("/", s.handleDeletePlan)
				r.Post("/run", s.handleRunPlan)
				r.Get("/runs", s.handleListRuns)
			})
		})

		r.Route("/runs/{runID}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Post("/cancel", s.handleCancelRun)
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handlePutProfile)
			r.Get("/posts", s.handleListPosts)
			r.Delete("/posts", s.handleClearPosts)
			r.Get("/posts/summary", s.handlePostSummary)
			r.Get("/calendar.xlsx", s.handleExportCalendar)
		})

		r.Get("/posts/{postID}", s.handleGetPost)

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", s.handleProviderHealth)
			r.Post("/reset", s.handleProviderReset)
		})

		r.Post("/publisher/tick", s.handlePublisherTick)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unhealthy", "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
