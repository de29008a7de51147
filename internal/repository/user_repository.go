package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"axionslab/auth/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, full_name, role, organization_id, avatar_url,
	provider, provider_id, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, email, password_hash, full_name, role, organization_id, avatar_url, provider, provider_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()
		)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FullName,
		user.Role,
		user.OrganizationID,
		user.AvatarURL,
		user.Provider,
		user.ProviderID,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// UpsertOAuth links a provider identity to the account with the same email,
// creating a user-role account when none exists.
func (r *UserRepository) UpsertOAuth(ctx context.Context, id string, profile models.Profile) (models.User, error) {
	const query = `
		INSERT INTO users (
			id, email, full_name, role, avatar_url, provider, provider_id, created_at, updated_at
		) VALUES (
			$1, $2, NULLIF($3, ''), 'user', NULLIF($4, ''), $5, $6, NOW(), NOW()
		)
		ON CONFLICT (email) DO UPDATE SET
			provider = EXCLUDED.provider,
			provider_id = EXCLUDED.provider_id,
			full_name = COALESCE(users.full_name, EXCLUDED.full_name),
			avatar_url = COALESCE(users.avatar_url, EXCLUDED.avatar_url),
			updated_at = NOW()
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query,
		id,
		profile.Email,
		profile.Name,
		profile.AvatarURL,
		profile.Provider,
		profile.ID,
	))
}

func scanUser(row scanner) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.Role,
		&user.OrganizationID,
		&user.AvatarURL,
		&user.Provider,
		&user.ProviderID,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}
