package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/middleware"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
)

// RouterConfig wires the HTTP API.
type RouterConfig struct {
	Service           ChatService
	Checks            map[string]Checker
	Logger            *logger.Logger
	JWTSecret         string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// UserRateLimitRequests caps chat turns per end user within RateLimitWindow.
	UserRateLimitRequests int
}

// NewRouter builds the API routes.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	health := NewHealthHandler(cfg.Checks)
	chat := NewChatHandler(cfg.Service, log)
	conversations := NewConversationHandler(cfg.Service, log)
	usage := NewUsageHandler(cfg.Service, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Group(func(r chi.Router) {
			if cfg.UserRateLimitRequests > 0 {
				r.Use(middleware.UserRateLimit(cfg.UserRateLimitRequests, cfg.RateLimitWindow))
			}
			r.Post("/chat-turn", chat.Turn)
		})

		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", conversations.Get)
			r.Delete("/", conversations.Delete)
			r.Get("/turns", conversations.Turns)
		})

		r.With(middleware.RequireScope(middleware.ScopeUsageRead)).Get("/usage", usage.Get)
	})

	return r
}
