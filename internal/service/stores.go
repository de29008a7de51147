package service

import (
	"context"
	"time"

	"axionslab/auth/internal/models"
)

// SessionStore persists sessions keyed by token fingerprint. Implementations
// return repository.ErrSessionNotFound for misses and
// repository.ErrSessionConflict when RotateTokens loses a race.
type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	GetByID(ctx context.Context, id string) (models.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (models.Session, error)
	GetByRefreshHash(ctx context.Context, refreshHash string) (models.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	RotateTokens(ctx context.Context, id, oldRefreshHash, newTokenHash, newRefreshHash string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
	DeactivateByUser(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// UserStore returns repository.ErrUserNotFound for unknown users and
// repository.ErrEmailTaken on duplicate registration.
type UserStore interface {
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	Create(ctx context.Context, user models.User) error
	UpsertOAuth(ctx context.Context, id string, profile models.Profile) (models.User, error)
}

type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	Verify(password string, hash []byte) (bool, error)
}

// ConsumedTokenStore remembers fingerprints of single-use tokens.
type ConsumedTokenStore interface {
	Consume(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error)
}

// RequestMeta describes the request a session is created for.
type RequestMeta struct {
	Domain    string
	IPAddress string
	UserAgent string
	Platform  string
	Browser   string
}
