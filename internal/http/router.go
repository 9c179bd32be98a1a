package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"document-processor/internal/middleware"
)

// Pinger is a dependency checked by /ready
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	Limiter        middleware.Limiter
}

type Router struct {
	chi.Router
	limiter middleware.Limiter
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Use chi middleware with aliases to avoid conflicts
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	return &Router{Router: r, limiter: cfg.Limiter}
}

// RegisterDocumentRoutes registers the processing routes behind the rate limiter
func (r *Router) RegisterDocumentRoutes(h *DocumentHandler) {
	r.Group(func(g chi.Router) {
		if r.limiter != nil {
			g.Use(middleware.RateLimit(r.limiter))
		}
		h.RegisterRoutes(g)
	})
}

// RegisterHealthRoutes registers health check routes. /ready pings every dependency.
func (r *Router) RegisterHealthRoutes(deps map[string]Pinger) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "document_processor",
		})
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		status, code := "ready", http.StatusOK
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("dependency", name).Msg("Readiness check failed")
				checks[name] = err.Error()
				status, code = "not_ready", http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		writeJSON(w, code, map[string]interface{}{
			"status":    status,
			"checks":    checks,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
}
