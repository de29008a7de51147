package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"axionslab/auth/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionConflict means a compare-and-swap on the session lost.
	ErrSessionConflict = errors.New("session changed concurrently")
)

// DBTX is the subset of pgxpool.Pool the repositories need.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const sessionColumns = `id, user_id, user_snapshot, domain, token_hash, refresh_token_hash,
	user_agent, platform, browser, ip_address, is_active, expires_at, last_activity_at, created_at`

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	snapshot, err := json.Marshal(session.User)
	if err != nil {
		return fmt.Errorf("encode user snapshot: %w", err)
	}

	const query = `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		snapshot,
		session.Domain,
		session.TokenHash,
		session.RefreshTokenHash,
		session.DeviceInfo.UserAgent,
		session.DeviceInfo.Platform,
		session.DeviceInfo.Browser,
		session.IPAddress,
		session.IsActive,
		session.ExpiresAt,
		session.LastActivityAt,
		session.CreatedAt,
	)
	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.db.QueryRow(ctx, query, id))
}

func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1`
	return scanSession(r.db.QueryRow(ctx, query, tokenHash))
}

func (r *SessionRepository) GetByRefreshHash(ctx context.Context, refreshHash string) (models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token_hash = $1`
	return scanSession(r.db.QueryRow(ctx, query, refreshHash))
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE sessions SET last_activity_at = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, at)
	return err
}

// RotateTokens swaps both hashes in one statement, guarded by the refresh
// hash the caller presented.
func (r *SessionRepository) RotateTokens(ctx context.Context, id, oldRefreshHash, newTokenHash, newRefreshHash string, at time.Time) error {
	const query = `
		UPDATE sessions
		SET token_hash = $3,
		    refresh_token_hash = $4,
		    last_activity_at = $5
		WHERE id = $1 AND refresh_token_hash = $2 AND is_active
	`
	cmd, err := r.db.Exec(ctx, query, id, oldRefreshHash, newTokenHash, newRefreshHash, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionConflict
	}
	return nil
}

func (r *SessionRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE sessions SET is_active = FALSE WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

func (r *SessionRepository) DeactivateByUser(ctx context.Context, userID string) (int64, error) {
	const query = `UPDATE sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`
	cmd, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1
		ORDER BY last_activity_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// PurgeExpired deletes sessions past their expiry and inactive sessions idle
// since before.
func (r *SessionRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `
		DELETE FROM sessions
		WHERE expires_at < $1
		   OR (NOT is_active AND last_activity_at < $1)
	`
	cmd, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanSession(row scanner) (models.Session, error) {
	var (
		session  models.Session
		snapshot []byte
	)
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&snapshot,
		&session.Domain,
		&session.TokenHash,
		&session.RefreshTokenHash,
		&session.DeviceInfo.UserAgent,
		&session.DeviceInfo.Platform,
		&session.DeviceInfo.Browser,
		&session.IPAddress,
		&session.IsActive,
		&session.ExpiresAt,
		&session.LastActivityAt,
		&session.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &session.User); err != nil {
			return models.Session{}, fmt.Errorf("decode user snapshot: %w", err)
		}
	}
	return session, nil
}
