package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/careflowhq/teleconsult-scheduling/internal/api"
	"github.com/careflowhq/teleconsult-scheduling/internal/audit"
	"github.com/careflowhq/teleconsult-scheduling/internal/booking"
	"github.com/careflowhq/teleconsult-scheduling/internal/config"
	"github.com/careflowhq/teleconsult-scheduling/internal/db"
	"github.com/careflowhq/teleconsult-scheduling/internal/guard"
	"github.com/careflowhq/teleconsult-scheduling/internal/logging"
	"github.com/careflowhq/teleconsult-scheduling/internal/notify"
	"github.com/careflowhq/teleconsult-scheduling/internal/observability/metrics"
	redisclient "github.com/careflowhq/teleconsult-scheduling/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logging.Init(cfg.Env, cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	trail := audit.NewDispatcher(audit.NewPgWriter(pgPool))
	defer trail.Close()

	repo := booking.NewPgRepository(pgPool)
	gatekeeper := guard.New(trail)
	sink := notify.NewRedisQueue(rdb, cfg.NotifyQueueKey)
	bookingMetrics := metrics.NewBookingMetrics(nil)
	svc := booking.NewService(repo, gatekeeper, sink, bookingMetrics, cfg)

	router := api.NewRouter(api.RouterConfig{
		Service:       svc,
		PgPool:        pgPool,
		Redis:         rdb,
		SystemActorID: cfg.SystemActorID,
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()

	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
}
