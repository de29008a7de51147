package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"axionslab/auth/internal/ids"
	"axionslab/auth/internal/models"
	"axionslab/auth/internal/policy"
	"axionslab/auth/internal/repository"
	"axionslab/auth/internal/security"
)

// SessionTokens is what a caller receives when a session is created or
// its credentials are rotated.
type SessionTokens struct {
	AccessToken  security.IssuedToken
	RefreshToken security.IssuedToken
	Session      models.Session
}

type SessionService struct {
	store      SessionStore
	users      UserStore
	consumed   ConsumedTokenStore
	tokens     *security.TokenService
	policy     *policy.Policy
	sessionTTL time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewSessionService(
	store SessionStore,
	users UserStore,
	consumed ConsumedTokenStore,
	tokens *security.TokenService,
	pol *policy.Policy,
	sessionTTL time.Duration,
	log zerolog.Logger,
) *SessionService {
	if sessionTTL <= 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	return &SessionService{
		store:      store,
		users:      users,
		consumed:   consumed,
		tokens:     tokens,
		policy:     pol,
		sessionTTL: sessionTTL,
		log:        log,
		now:        time.Now,
	}
}

// SetClock replaces the time source used for session expiry.
func (s *SessionService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SessionService) CreateSession(ctx context.Context, user models.User, meta RequestMeta) (*SessionTokens, error) {
	domain := policy.NormalizeDomain(meta.Domain)
	if domain == "" {
		domain = s.policy.IdentityDomain()
	}

	sessionID := ids.New()
	access, err := s.tokens.IssueAccess(security.AccessInput{
		UserID:         user.ID,
		Email:          user.Email,
		Role:           string(user.Role),
		OrganizationID: user.OrgID(),
		Permissions:    s.policy.PermissionsFor(user.Role),
		Domain:         domain,
		AppAccess:      s.policy.AppsFor(user.Role),
		SessionID:      sessionID,
	})
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(user.ID, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	refreshHash := security.Fingerprint(refresh.Token)
	session := models.Session{
		ID:               sessionID,
		UserID:           user.ID,
		User:             user.Snapshot(),
		Domain:           domain,
		TokenHash:        security.Fingerprint(access.Token),
		RefreshTokenHash: &refreshHash,
		DeviceInfo: models.DeviceInfo{
			UserAgent: meta.UserAgent,
			Platform:  meta.Platform,
			Browser:   meta.Browser,
		},
		IPAddress:      meta.IPAddress,
		IsActive:       true,
		ExpiresAt:      now.Add(s.sessionTTL),
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("session_id", session.ID).
		Str("user_id", user.ID).
		Str("domain", domain).
		Msg("session created")

	return &SessionTokens{AccessToken: access, RefreshToken: refresh, Session: session}, nil
}

// ValidateSession resolves an access token to its live session. Both the
// token's own expiry and the session's expiry must hold.
func (s *SessionService) ValidateSession(ctx context.Context, accessToken string) (models.Session, error) {
	claims, err := s.tokens.VerifyType(accessToken, security.TokenTypeAccess, "")
	if err != nil {
		return models.Session{}, ErrNotAuthenticated
	}

	session, err := s.store.GetByTokenHash(ctx, security.Fingerprint(accessToken))
	if errors.Is(err, repository.ErrSessionNotFound) {
		return models.Session{}, ErrNotAuthenticated
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("lookup session: %w", err)
	}
	if session.ID != claims.SessionID || !session.IsActive {
		return models.Session{}, ErrNotAuthenticated
	}

	now := s.now().UTC()
	if !session.ExpiresAt.After(now) {
		s.expire(ctx, session)
		return models.Session{}, ErrNotAuthenticated
	}

	if err := s.store.Touch(ctx, session.ID, now); err != nil {
		return models.Session{}, fmt.Errorf("touch session: %w", err)
	}
	session.LastActivityAt = now
	return session, nil
}

// RefreshSession rotates the access and refresh tokens of the session the
// refresh token belongs to. The presented refresh token stops working.
func (s *SessionService) RefreshSession(ctx context.Context, refreshToken string) (*SessionTokens, error) {
	claims, err := s.tokens.VerifyType(refreshToken, security.TokenTypeRefresh, "")
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	oldHash := security.Fingerprint(refreshToken)
	session, err := s.store.GetByRefreshHash(ctx, oldHash)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if session.ID != claims.SessionID || session.UserID != claims.UserID || !session.IsActive {
		return nil, ErrNotAuthenticated
	}
	now := s.now().UTC()
	if !session.ExpiresAt.After(now) {
		s.expire(ctx, session)
		return nil, ErrNotAuthenticated
	}

	user, err := s.currentUser(ctx, session)
	if err != nil {
		return nil, err
	}

	access, err := s.tokens.IssueAccess(security.AccessInput{
		UserID:         user.ID,
		Email:          user.Email,
		Role:           string(user.Role),
		OrganizationID: user.OrgID(),
		Permissions:    s.policy.PermissionsFor(user.Role),
		Domain:         session.Domain,
		AppAccess:      s.policy.AppsFor(user.Role),
		SessionID:      session.ID,
	})
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(user.ID, session.ID)
	if err != nil {
		return nil, err
	}

	newTokenHash := security.Fingerprint(access.Token)
	newRefreshHash := security.Fingerprint(refresh.Token)
	err = s.store.RotateTokens(ctx, session.ID, oldHash, newTokenHash, newRefreshHash, now)
	if errors.Is(err, repository.ErrSessionConflict) {
		s.log.Warn().Str("session_id", session.ID).Msg("refresh token reused or raced")
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("rotate session tokens: %w", err)
	}

	session.TokenHash = newTokenHash
	session.RefreshTokenHash = &newRefreshHash
	session.LastActivityAt = now
	session.User = user.Snapshot()
	return &SessionTokens{AccessToken: access, RefreshToken: refresh, Session: session}, nil
}

// InvalidateSession deactivates the session holding the given access token
// fingerprint. Unknown fingerprints are not an error.
func (s *SessionService) InvalidateSession(ctx context.Context, tokenFingerprint string) error {
	session, err := s.store.GetByTokenHash(ctx, tokenFingerprint)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	if err := s.store.Deactivate(ctx, session.ID); err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	s.log.Info().Str("session_id", session.ID).Str("user_id", session.UserID).Msg("session invalidated")
	return nil
}

func (s *SessionService) InvalidateAllUserSessions(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.DeactivateByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("deactivate user sessions: %w", err)
	}
	s.log.Info().Str("user_id", userID).Int64("count", n).Msg("all user sessions invalidated")
	return n, nil
}

func (s *SessionService) ListUserSessions(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// PurgeExpired removes sessions that expired or went inactive before the
// cutoff.
func (s *SessionService) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	return s.store.PurgeExpired(ctx, before)
}

// GenerateCrossDomainToken mints a temporary token carrying the session
// user's permissions, usable only on targetDomain.
func (s *SessionService) GenerateCrossDomainToken(session models.Session, targetDomain string) (security.IssuedToken, error) {
	domain := policy.NormalizeDomain(targetDomain)
	if domain == "" {
		return security.IssuedToken{}, ValidationError("target_domain is required")
	}
	return s.tokens.IssueTemporary(session.UserID, domain, s.policy.PermissionsFor(session.User.Role))
}

// ExchangeTempToken trades a temporary token for a new session on
// targetDomain. Each temporary token is accepted at most once.
func (s *SessionService) ExchangeTempToken(ctx context.Context, tempToken, targetDomain string, meta RequestMeta) (*SessionTokens, error) {
	domain := policy.NormalizeDomain(targetDomain)
	if domain == "" {
		return nil, ValidationError("target_domain is required")
	}

	claims, err := s.tokens.VerifyType(tempToken, security.TokenTypeTemporary, domain)
	if errors.Is(err, security.ErrTokenExpired) {
		return nil, ErrTempTokenExpired
	}
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if s.consumed != nil {
		ttl := time.Unix(claims.ExpiresAtUnix, 0).Sub(s.now())
		first, err := s.consumed.Consume(ctx, security.Fingerprint(tempToken), ttl)
		if err != nil {
			return nil, fmt.Errorf("consume temporary token: %w", err)
		}
		if !first {
			s.log.Warn().Str("user_id", claims.UserID).Str("domain", domain).Msg("temporary token replayed")
			return nil, ErrNotAuthenticated
		}
	}

	meta.Domain = domain
	return s.CreateSession(ctx, user, meta)
}

func (s *SessionService) currentUser(ctx context.Context, session models.Session) (models.User, error) {
	if s.users == nil {
		return session.User.User(), nil
	}
	user, err := s.users.GetByID(ctx, session.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, ErrNotAuthenticated
	}
	if err != nil {
		return models.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func (s *SessionService) expire(ctx context.Context, session models.Session) {
	if err := s.store.Deactivate(ctx, session.ID); err != nil {
		s.log.Error().Err(err).Str("session_id", session.ID).Msg("failed to deactivate expired session")
	}
}
