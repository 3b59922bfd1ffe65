package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterConfig holds settings for the API router.
type RouterConfig struct {
	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string

	// ContentDir is served under /content/ so manual jobs can link to their video.
	ContentDir string

	Logger zerolog.Logger
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	if cfg.ContentDir != "" {
		r.Handle("/content/*", http.StripPrefix("/content/", http.FileServer(http.Dir(cfg.ContentDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/agent/create-video", h.CreateVideo)
		r.Get("/jobs/{job_id}/status", h.GetJobStatus)

		r.Post("/manual/generate-script", h.GenerateScript)
		r.Post("/manual/compile-video", h.CompileVideo)
	})

	return r
}

func allowedOrigins(raw string) []string {
	origins := []string{"*"}
	if raw == "" {
		return origins
	}
	trimmed := make([]string, 0)
	for _, o := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(o); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) > 0 {
		origins = trimmed
	}
	return origins
}
