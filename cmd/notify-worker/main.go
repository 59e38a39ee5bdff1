// notify-worker drains the outbound notification queue and hands messages to
// the configured deliverer. Delivery is best-effort: the bookings behind these
// messages are already committed.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/careflowhq/teleconsult-scheduling/internal/config"
	"github.com/careflowhq/teleconsult-scheduling/internal/logging"
	"github.com/careflowhq/teleconsult-scheduling/internal/notify"
	redisclient "github.com/careflowhq/teleconsult-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logging.Init(cfg.Env, cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Str("queue", cfg.NotifyQueueKey).Msg("notify-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	queue := notify.NewRedisQueue(rdb, cfg.NotifyQueueKey)
	worker := notify.NewWorker(queue, notify.LogDeliverer{})

	worker.Run(rootCtx)

	log.Info().Msg("notify-worker stopped")
}
