package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/careflowhq/teleconsult-scheduling/internal/config"
	"github.com/careflowhq/teleconsult-scheduling/internal/db"
	"github.com/careflowhq/teleconsult-scheduling/internal/logging"
)

func main() {
	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logging.Init(cfg.Env, cfg.LogLevel)

	source := os.Getenv("MIGRATIONS_URL")
	if source == "" {
		source = "file://internal/db/migrations"
	}

	if err := db.Migrate(source, cfg.PostgresDSN, direction); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}
