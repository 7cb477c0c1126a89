package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// AllowedOrigins lists browser origins allowed by CORS. Empty disables
	// CORS headers.
	AllowedOrigins []string
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// NewRouter mounts the auth endpoints on a chi router.
func NewRouter(a *AuthService, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	limiter := NewRateLimiter(a.securityConfig.LoginRate, a.securityConfig.LoginBurst)

	r.Group(func(r chi.Router) {
		if a.securityConfig.LoginRate > 0 {
			r.Use(limiter.Middleware)
		}
		r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
			result := a.LoginHandler(r)
			writeJSON(w, result.StatusCode, result)
		})
		r.Post("/register", func(w http.ResponseWriter, r *http.Request) {
			result := a.RegisterHandler(r)
			writeJSON(w, result.StatusCode, result)
		})
	})

	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		result := a.LogoutHandler(r)
		writeJSON(w, result.StatusCode, result)
	})
	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		result := a.MeHandler(r)
		writeJSON(w, result.StatusCode, result)
	})

	r.With(a.AuthMiddleware).Get("/me/events", func(w http.ResponseWriter, r *http.Request) {
		result := a.SecurityEventsHandler(r)
		writeJSON(w, result.StatusCode, result)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := a.storage.Ping(); err != nil {
			slog.Error("Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "Storage unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   a.clock.Now().UTC().Format(time.RFC3339),
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
