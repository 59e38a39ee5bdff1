package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/careflowhq/teleconsult-scheduling/internal/booking"
)

type RouterConfig struct {
	Service       *booking.Service
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	SystemActorID uuid.UUID
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Inbound ingestion is machine-originated: the SMS gateway webhook carries
	// no clinician identity, so writes are attributed to the system actor.
	r.Post("/requests", ingestRequestHandler(cfg.Service, cfg.SystemActorID))
	r.Get("/requests/{id}", getRequestHandler(cfg.Service))
	r.Get("/slots", listSlotsHandler(cfg.Service))

	// Everything that mutates on behalf of a person requires an actor.
	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		r.Post("/requests/{id}/accept", acceptRequestHandler(cfg.Service))
		r.Post("/requests/{id}/reject", rejectRequestHandler(cfg.Service))
		r.Post("/slots", publishSlotHandler(cfg.Service))
		r.Delete("/slots/{id}", deleteSlotHandler(cfg.Service))
		r.Post("/slots/prune", pruneSlotsHandler(cfg.Service))
	})

	return r
}
