package main

import (
	"flag"

	"axionslab/auth/internal/config"
	"axionslab/auth/internal/database"
	"axionslab/auth/internal/log"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := log.New(cfg.Environment, "auth-migrate")

	if err := database.Migrate(cfg.Postgres.DSN, *direction); err != nil {
		logger.Fatal().Err(err).Str("direction", *direction).Msg("migration failed")
	}
	logger.Info().Str("direction", *direction).Msg("migrations applied")
}
