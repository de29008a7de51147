package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/rs/zerolog"

	"axionslab/auth/internal/config"
	"axionslab/auth/internal/database"
	"axionslab/auth/internal/ids"
	"axionslab/auth/internal/log"
	"axionslab/auth/internal/models"
	"axionslab/auth/internal/repository"
	"axionslab/auth/internal/security"
)

// seed creates the demo account used by local front ends.
func main() {
	email := flag.String("email", "demo@axionslab.com", "account email")
	password := flag.String("password", "demo123", "account password")
	role := flag.String("role", string(models.UserRoleUser), "account role")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := log.New(cfg.Environment, "auth-seed")
	if cfg.IsProduction() {
		logger.Fatal().Msg("refusing to seed a production database")
	}

	r := models.UserRole(*role)
	if !r.Valid() {
		logger.Fatal().Str("role", *role).Msg("unknown role")
	}

	if err := seed(context.Background(), cfg.Postgres, *email, *password, r, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
}

func seed(ctx context.Context, pg config.PostgresConfig, email, password string, role models.UserRole, logger zerolog.Logger) error {
	pool, err := database.NewPostgresPool(ctx, pg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	hash, err := security.NewArgon2Hasher(security.DefaultArgon2Params).Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Provider:     "password",
	}
	err = repository.NewUserRepository(pool).Create(ctx, user)
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		logger.Info().Str("email", email).Msg("user already exists")
	case err != nil:
		return fmt.Errorf("create user: %w", err)
	default:
		logger.Info().Str("email", email).Str("user_id", user.ID).Msg("user created")
	}
	return nil
}
