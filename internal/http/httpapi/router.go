package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mediagen/internal/http/handlers"
	"mediagen/internal/middleware"
)

// Options carries everything the router needs beyond the handlers.
type Options struct {
	JWTSecret      string
	RateLimit      int
	RatePeriod     time.Duration
	AllowedOrigins []string
	CountryLookup  middleware.CountryLookup
	Registry       *prometheus.Registry
	Logger         zerolog.Logger

	// StaticDir, when set, is served under /static/ so locally stored media
	// is reachable at the URLs the file store hands out.
	StaticDir string
}

// NewRouter assembles the HTTP surface. The webhook and health endpoints
// stay outside the auth group: providers do not carry user tokens.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Locale(opts.CountryLookup),
		middleware.Logger(opts.Logger),
	)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}
	if opts.RateLimit > 0 {
		per := opts.RatePeriod
		if per <= 0 {
			per = time.Minute
		}
		r.Use(middleware.RateLimit(opts.RateLimit, per))
	}

	r.Get("/v1/healthz", app.Health)
	r.Post("/v1/webhooks/video", app.VideoWebhook)
	if opts.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}
	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Get("/v1/me", app.Me)
		r.Route("/v1/generations", func(r chi.Router) {
			r.Post("/", app.Generate)
			r.Get("/", app.ListGenerations)
			r.Get("/{job_id}", app.GetGeneration)
			r.Get("/{job_id}/events", app.StreamGeneration)
			r.Post("/{job_id}/cancel", app.CancelGeneration)
			r.Post("/{job_id}/pause", app.PauseGeneration)
			r.Post("/{job_id}/resume", app.ResumeGeneration)
		})
		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/balance", app.CreditBalance)
			r.Get("/check", app.CreditCheck)
			r.Get("/history", app.CreditHistory)
		})
	})

	return r
}
