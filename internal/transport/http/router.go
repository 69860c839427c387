package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/emanuelef/yt-convert-go/internal/config"
	"github.com/emanuelef/yt-convert-go/internal/transport/http/middleware"
)

const (
	infoTimeout     = 60 * time.Second
	downloadSlack   = 30 * time.Second
	limiterIdleTTL  = 10 * time.Minute
	statusRateScale = 10
)

// RateLimiters are the per-IP budgets for the two classes of endpoint.
type RateLimiters struct {
	Download *middleware.RateLimiter // starts a conversion
	Status   *middleware.RateLimiter // metadata lookups and file fetches
}

// NewRateLimiters derives both budgets from the configured download rate.
func NewRateLimiters(cfg *config.Config) *RateLimiters {
	budget := func(scale int) *middleware.RateLimiter {
		return middleware.NewRateLimiter(&middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimitRPM * scale,
			Burst:             cfg.RateLimitBurst * scale,
			IdleTTL:           limiterIdleTTL,
		})
	}
	return &RateLimiters{Download: budget(1), Status: budget(statusRateScale)}
}

// NewRouter wires the API routes.
func NewRouter(cfg *config.Config, handlers *Handlers, limiters *RateLimiters) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Logger,
		chimiddleware.Recoverer,
		chimiddleware.CleanPath,
		chimiddleware.SetHeader("X-Content-Type-Options", "nosniff"),
		cors.Handler(corsOptions(cfg)),
	)

	r.Get("/api/health", handlers.HealthHandler)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(middleware.RateLimitMiddleware(limiters.Status))
			g.With(chimiddleware.Compress(5), chimiddleware.Timeout(infoTimeout)).
				Post("/video-info", handlers.VideoInfoHandler)
			// Streamed, so no timeout or compression.
			g.Get("/download/{id}", handlers.FileHandler)
		})

		api.Group(func(g chi.Router) {
			g.Use(middleware.RateLimitMiddleware(limiters.Download))
			if humanCheckEnabled(cfg) {
				g.Use(middleware.TurnstileMiddleware(&middleware.TurnstileConfig{
					SecretKey: cfg.TurnstileSecretKey,
				}))
			}
			g.Use(chimiddleware.Timeout(cfg.DownloadTimeout + downloadSlack))
			g.Post("/download", handlers.DownloadHandler)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Route not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed.")
	})

	return r
}

func humanCheckEnabled(cfg *config.Config) bool {
	return !cfg.TurnstileSkip && cfg.TurnstileSecretKey != ""
}

func corsOptions(cfg *config.Config) cors.Options {
	return cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Turnstile-Token"},
		ExposedHeaders: []string{"Content-Disposition", "Retry-After", "X-RateLimit-Remaining", "X-Request-ID"},
		MaxAge:         300,
	}
}

// NewServer creates the HTTP server. writeTimeout must outlast a full
// conversion, since the download response is only written at the end.
func NewServer(addr string, handler http.Handler, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}
