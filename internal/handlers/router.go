package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prudhvinik1/retailpulse/internal/logger"
	"go.uber.org/zap"
)

const (
	ServiceName    = "retailpulse"
	ServiceVersion = "2.0.0"

	requestIDHeader = "X-Request-Id"
	healthTimeout   = 2 * time.Second
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Tools    *ToolsHandler
	Auth     TokenService // nil disables auth
	Checks   map[string]HealthCheck
	Gatherer prometheus.Gatherer
	Features []string
	Logger   *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := chi.NewRouter()
	router.Use(RequestID)
	router.Use(RequestLogger(log))
	router.Use(middleware.Recoverer)

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"service":  ServiceName,
			"version":  ServiceVersion,
			"features": cfg.Features,
		})
	})
	router.Get("/health", healthHandler(cfg.Checks))
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if cfg.Auth != nil {
		router.Post("/auth/token", NewAuthHandler(cfg.Auth).Token)
	}

	router.Route("/tools", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(AuthMiddleware(cfg.Auth))
		}
		r.Get("/", cfg.Tools.List)
		r.Post("/call", cfg.Tools.Call)
	})

	return router
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		WriteJSON(w, status, map[string]any{"status": overall, "checks": results})
	}
}

// RequestID propagates X-Request-Id or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			}
			if auth := r.Header.Get("Authorization"); auth != "" {
				fields = append(fields, zap.String("authorization", logger.MaskAuthorization(auth)))
			}
			log.Info("http request", fields...)
		})
	}
}
