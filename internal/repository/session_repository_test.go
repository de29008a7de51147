package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axionslab/auth/internal/models"
)

func TestSessionRepository_RotateTokens(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSessionRepository(mock)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE sessions`).
		WithArgs("s1", "old-refresh", "new-access", "new-refresh", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.RotateTokens(context.Background(), "s1", "old-refresh", "new-access", "new-refresh", at))

	// A second rotation with the same refresh hash matches no row.
	mock.ExpectExec(`UPDATE sessions`).
		WithArgs("s1", "old-refresh", "other-access", "other-refresh", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = repo.RotateTokens(context.Background(), "s1", "old-refresh", "other-access", "other-refresh", at)
	assert.ErrorIs(t, err, ErrSessionConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_GetByTokenHashNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM sessions WHERE token_hash = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewSessionRepository(mock).GetByTokenHash(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_GetByRefreshHashScansSnapshot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refresh := "refresh-hash"
	columns := []string{
		"id", "user_id", "user_snapshot", "domain", "token_hash", "refresh_token_hash",
		"user_agent", "platform", "browser", "ip_address", "is_active", "expires_at", "last_activity_at", "created_at",
	}
	mock.ExpectQuery(`SELECT .* FROM sessions WHERE refresh_token_hash = \$1`).
		WithArgs(refresh).
		WillReturnRows(mock.NewRows(columns).AddRow(
			"s1", "u1", []byte(`{"id":"u1","email":"demo@axionslab.com","role":"user"}`), "axionslab.com",
			"access-hash", &refresh, "curl/8", "linux", "curl", "10.0.0.1", true,
			now.Add(30*24*time.Hour), now, now,
		))

	session, err := NewSessionRepository(mock).GetByRefreshHash(context.Background(), refresh)
	require.NoError(t, err)
	assert.Equal(t, "s1", session.ID)
	assert.Equal(t, "demo@axionslab.com", session.User.Email)
	assert.Equal(t, models.UserRoleUser, session.User.Role)
	require.NotNil(t, session.RefreshTokenHash)
	assert.Equal(t, refresh, *session.RefreshTokenHash)
	assert.True(t, session.Valid(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_DeactivateByUserAndPurge(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSessionRepository(mock)
	before := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE sessions SET is_active = FALSE WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	n, err := repo.DeactivateByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs(before).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	n, err = repo.PurgeExpired(context.Background(), before)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}
