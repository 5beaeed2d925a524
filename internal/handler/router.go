package handler

import (
	"context"
	"net/http"
	"time"

	"eegility/internal/auth"
	"eegility/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterOptions настраивает HTTP-слой. Health проверяет зависимости для
// /healthz; nil означает "всегда здоров".
type RouterOptions struct {
	AllowedOrigins []string
	Health         func(ctx context.Context) error
	RequestTimeout time.Duration
	AccessLog      bool
}

func NewRouter(
	records *RecordHandler,
	shares *ShareHandler,
	authn auth.Authenticator,
	opts RouterOptions,
	log *zap.Logger,
) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if opts.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(r.Context()); err != nil {
				log.Warn("health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		r.Use(Authenticate(authn, log))

		r.Route("/records", func(r chi.Router) {
			r.Get("/", records.List)
			r.Post("/", records.Register)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", records.Get)
				r.Put("/", records.Update)
				r.Delete("/", records.Delete)
				r.Get("/download", records.Download)
				r.Get("/permission", records.Permission)
				r.Post("/analysis", records.RequestAnalysis)
				r.Get("/analysis", records.GetAnalysis)
				r.Get("/shares", records.Shares)
			})
		})

		r.Route("/shares", func(r chi.Router) {
			r.Post("/", shares.CreateShare)
			r.Get("/incoming", shares.Incoming)
			r.Get("/outgoing", shares.Outgoing)
			r.Post("/cleanup-expired", shares.CleanupExpired)
			r.Get("/{id}", shares.GetShare)
			r.Post("/{id}/accept", shares.Respond(domain.ShareActionAccept))
			r.Post("/{id}/reject", shares.Respond(domain.ShareActionReject))
			r.Post("/{id}/revoke", shares.Revoke)
		})
	})

	return r
}
