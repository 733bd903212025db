package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"notecanvas/application/commands/bus"
	"notecanvas/application/ports"
	querybus "notecanvas/application/queries/bus"
	"notecanvas/interfaces/http/rest/handlers"
	"notecanvas/interfaces/http/rest/middleware"
	pkgerrors "notecanvas/pkg/errors"
	"notecanvas/pkg/observability"
)

// readyTimeout bounds the store ping behind /ready.
const readyTimeout = 2 * time.Second

// RouterConfig holds the optional parts of the HTTP surface.
type RouterConfig struct {
	EnableCORS     bool
	AllowedOrigins []string
	Debug          bool

	// WebSocket serves /ws when set.
	WebSocket http.HandlerFunc
	// Metrics serves /metrics and records request metrics when set.
	Metrics *observability.Collector
	// Health backs /ready when set.
	Health ports.HealthChecker

	// RateLimit is the sustained API requests per second allowed per client
	// address; zero or less disables throttling.
	RateLimit float64
	RateBurst int
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	cfg        RouterConfig
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	cfg RouterConfig,
	logger *zap.Logger,
) *Router {
	return &Router{
		commandBus: commandBus,
		queryBus:   queryBus,
		cfg:        cfg,
		errors:     pkgerrors.NewErrorHandler(logger, cfg.Debug),
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	var recorder middleware.HTTPRecorder
	if rt.cfg.Metrics != nil {
		recorder = rt.cfg.Metrics
	}

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errors.Middleware)
	router.Use(middleware.Logger(rt.logger, recorder))

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.cfg.Metrics.Handler())
	}
	if rt.cfg.WebSocket != nil {
		router.Get("/ws", rt.cfg.WebSocket)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.AllowContentType("application/json"))
		if rt.cfg.RateLimit > 0 {
			limiter := middleware.NewClientLimiter(rt.cfg.RateLimit, rt.cfg.RateBurst)
			r.Use(middleware.RateLimit(limiter, func(w http.ResponseWriter, r *http.Request) {
				rt.errors.HandleStatus(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			}))
		}

		canvasHandler := handlers.NewCanvasHandler(rt.queryBus, rt.errors, rt.logger)
		r.Get("/snapshot", canvasHandler.GetSnapshot)

		r.Route("/notes", func(r chi.Router) {
			noteHandler := handlers.NewNoteHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)
			r.Get("/", noteHandler.ListNotes)
			r.Post("/", noteHandler.CreateNote)
			r.Get("/{id}", noteHandler.GetNote)
			r.Put("/{id}", noteHandler.UpdateNote)
			r.Patch("/{id}/position", noteHandler.MoveNote)
			r.Delete("/{id}", noteHandler.DeleteNote)
		})

		r.Route("/connections", func(r chi.Router) {
			connectionHandler := handlers.NewConnectionHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)
			r.Get("/", connectionHandler.ListConnections)
			r.Post("/", connectionHandler.CreateConnection)
			r.Delete("/{id}", connectionHandler.DeleteConnection)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck reports ready once the store answers a ping.
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	if rt.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(req.Context(), readyTimeout)
		defer cancel()
		if err := rt.cfg.Health.Ping(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.Error(err))
			rt.errors.HandleStatus(w, req, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
