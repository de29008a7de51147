package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"axionslab/auth/internal/config"
	"axionslab/auth/internal/policy"
)

type TokenType string

const (
	TokenTypeAccess    TokenType = "access"
	TokenTypeRefresh   TokenType = "refresh"
	TokenTypeTemporary TokenType = "temporary"
	TokenTypeState     TokenType = "state"
)

var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrAudienceMismatch = errors.New("token audience mismatch")
	ErrWrongTokenType   = errors.New("unexpected token type")
	ErrInvalidToken     = errors.New("invalid token")
)

// StatePayload is the context carried through a login redirect.
type StatePayload struct {
	SourceURL    string `json:"source_url"`
	TargetDomain string `json:"target_domain"`
	App          string `json:"app"`
	Timestamp    int64  `json:"timestamp"`
	Nonce        string `json:"nonce"`
	Provider     string `json:"provider,omitempty"`
}

// Claims is shared by every token kind; Type tells them apart.
type Claims struct {
	UserID         string        `json:"user_id,omitempty"`
	Email          string        `json:"email,omitempty"`
	Role           string        `json:"role,omitempty"`
	OrganizationID string        `json:"organization_id,omitempty"`
	Permissions    []string      `json:"permissions,omitempty"`
	Domain         string        `json:"domain,omitempty"`
	AppAccess      []string      `json:"app_access,omitempty"`
	SessionID      string        `json:"session_id,omitempty"`
	TargetDomain   string        `json:"target_domain,omitempty"`
	State          *StatePayload `json:"state,omitempty"`
	Type           TokenType     `json:"type"`
	IssuedAtUnix   int64         `json:"issued_at"`
	ExpiresAtUnix  int64         `json:"expires_at"`
	jwt.RegisteredClaims
}

type AccessInput struct {
	UserID         string
	Email          string
	Role           string
	OrganizationID string
	Permissions    []string
	Domain         string
	AppAccess      []string
	SessionID      string
}

// IssuedToken is a signed token together with its expiry.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenService signs and verifies HS256 tokens with a single shared secret.
type TokenService struct {
	secret       []byte
	issuer       string
	accessTTL    time.Duration
	refreshTTL   time.Duration
	temporaryTTL time.Duration
	stateTTL     time.Duration
	now          func() time.Time
}

func NewTokenService(cfg config.SecurityConfig) *TokenService {
	s := &TokenService{
		secret:       []byte(cfg.JWTSecret),
		issuer:       cfg.Issuer,
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		temporaryTTL: cfg.TemporaryTTL,
		stateTTL:     cfg.StateTTL,
		now:          time.Now,
	}
	if s.issuer == "" {
		s.issuer = "axionslab-auth"
	}
	if s.accessTTL <= 0 {
		s.accessTTL = 15 * time.Minute
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = 30 * 24 * time.Hour
	}
	if s.temporaryTTL <= 0 {
		s.temporaryTTL = 5 * time.Minute
	}
	if s.stateTTL <= 0 {
		s.stateTTL = 10 * time.Minute
	}
	return s
}

// SetClock replaces the time source used for issuing and verifying.
func (s *TokenService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *TokenService) AccessTTL() time.Duration    { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration   { return s.refreshTTL }
func (s *TokenService) TemporaryTTL() time.Duration { return s.temporaryTTL }

func (s *TokenService) IssueAccess(in AccessInput) (IssuedToken, error) {
	domain := policy.NormalizeDomain(in.Domain)
	claims := Claims{
		UserID:         in.UserID,
		Email:          in.Email,
		Role:           in.Role,
		OrganizationID: in.OrganizationID,
		Permissions:    in.Permissions,
		Domain:         domain,
		AppAccess:      in.AppAccess,
		SessionID:      in.SessionID,
		Type:           TokenTypeAccess,
	}
	return s.sign(claims, in.UserID, domain, s.accessTTL)
}

func (s *TokenService) IssueRefresh(userID, sessionID string) (IssuedToken, error) {
	claims := Claims{
		UserID:    userID,
		SessionID: sessionID,
		Type:      TokenTypeRefresh,
	}
	return s.sign(claims, userID, "", s.refreshTTL)
}

func (s *TokenService) IssueTemporary(userID, targetDomain string, permissions []string) (IssuedToken, error) {
	domain := policy.NormalizeDomain(targetDomain)
	if domain == "" {
		return IssuedToken{}, fmt.Errorf("temporary token: %w", ErrInvalidToken)
	}
	claims := Claims{
		UserID:       userID,
		TargetDomain: domain,
		Permissions:  permissions,
		Type:         TokenTypeTemporary,
	}
	return s.sign(claims, userID, domain, s.temporaryTTL)
}

// IssueState signs a redirect state blob so it cannot be altered in transit.
func (s *TokenService) IssueState(audience string, payload StatePayload) (IssuedToken, error) {
	if payload.Nonce == "" {
		payload.Nonce = uuid.NewString()
	}
	if payload.Timestamp == 0 {
		payload.Timestamp = s.now().Unix()
	}
	claims := Claims{
		State: &payload,
		Type:  TokenTypeState,
	}
	return s.sign(claims, "", policy.NormalizeDomain(audience), s.stateTTL)
}

func (s *TokenService) sign(claims Claims, subject, audience string, ttl time.Duration) (IssuedToken, error) {
	if len(s.secret) == 0 {
		return IssuedToken{}, fmt.Errorf("sign %s token: empty secret", claims.Type)
	}
	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	claims.IssuedAtUnix = now.Unix()
	claims.ExpiresAtUnix = expiresAt.Unix()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign %s token: %w", claims.Type, err)
	}
	return IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, issuer and expiry, and the audience when
// expectedAudience is not empty.
func (s *TokenService) Verify(token, expectedAudience string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(s.secret) == 0 {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	if _, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	// The library already checked exp; expires_at is checked again on its own.
	if claims.ExpiresAtUnix == 0 || !s.now().Before(time.Unix(claims.ExpiresAtUnix, 0)) {
		return nil, ErrTokenExpired
	}

	if aud := policy.NormalizeDomain(expectedAudience); aud != "" {
		if !audienceContains(claims.Audience, aud) {
			return nil, ErrAudienceMismatch
		}
	}
	return &claims, nil
}

// VerifyType is Verify plus a check on the token kind.
func (s *TokenService) VerifyType(token string, typ TokenType, expectedAudience string) (*Claims, error) {
	claims, err := s.Verify(token, expectedAudience)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, ErrWrongTokenType
	}
	switch typ {
	case TokenTypeAccess, TokenTypeRefresh, TokenTypeTemporary:
		if claims.UserID == "" || claims.Subject != claims.UserID {
			return nil, ErrInvalidToken
		}
	case TokenTypeState:
		if claims.State == nil {
			return nil, ErrInvalidToken
		}
	}
	if typ == TokenTypeTemporary && expectedAudience != "" && claims.TargetDomain != policy.NormalizeDomain(expectedAudience) {
		return nil, ErrAudienceMismatch
	}
	return claims, nil
}

// Fingerprint is the SHA-256 hex digest stored in place of a raw token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if strings.EqualFold(a, want) {
			return true
		}
	}
	return false
}
