// slot-pruner periodically removes stale, unbooked slots. Deletions run
// through the mutation gatekeeper's guarded bulk path, so slots referenced by
// a consultation are structurally excluded.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/careflowhq/teleconsult-scheduling/internal/audit"
	"github.com/careflowhq/teleconsult-scheduling/internal/booking"
	"github.com/careflowhq/teleconsult-scheduling/internal/config"
	"github.com/careflowhq/teleconsult-scheduling/internal/db"
	"github.com/careflowhq/teleconsult-scheduling/internal/guard"
	"github.com/careflowhq/teleconsult-scheduling/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logging.Init(cfg.Env, cfg.LogLevel)
	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.PruneInterval).
		Dur("retention", cfg.SlotRetention).
		Msg("slot-pruner starting up")

	if cfg.SystemActorID == uuid.Nil {
		log.Fatal().Msg("SYSTEM_ACTOR_ID is required: pruning is a mutation and must be attributed")
	}

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

	trail := audit.NewDispatcher(audit.NewPgWriter(pgPool))
	defer trail.Close()

	repo := booking.NewPgRepository(pgPool)
	svc := booking.NewService(repo, guard.New(trail), nil, nil, cfg)

	// Run once at startup
	runOnce(rootCtx, svc, cfg)

	ticker := time.NewTicker(cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping slot-pruner")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, cfg config.Config) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-cfg.SlotRetention)
	filter := guard.BulkFilter{
		ExcludeBooked: true,
		EndedBefore:   &cutoff,
	}

	start := time.Now()
	removed, err := svc.PruneSlots(runCtx, filter, cfg.SystemActorID)
	if err != nil {
		log.Error().Err(err).Msg("prune run error")
		return
	}
	log.Info().
		Int64("removed", removed).
		Dur("took", time.Since(start)).
		Msg("prune run complete")
}
