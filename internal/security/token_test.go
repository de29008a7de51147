package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axionslab/auth/internal/config"
)

func newTestTokenService(t *testing.T) (*TokenService, *time.Time) {
	t.Helper()
	svc := NewTokenService(config.SecurityConfig{
		JWTSecret:    "test-secret-0123456789abcdef0123",
		Issuer:       "axionslab-auth",
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   30 * 24 * time.Hour,
		TemporaryTTL: 5 * time.Minute,
		StateTTL:     10 * time.Minute,
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })
	return svc, &now
}

func TestIssueAccess_VerifyRoundTrip(t *testing.T) {
	svc, _ := newTestTokenService(t)

	issued, err := svc.IssueAccess(AccessInput{
		UserID:      "u1",
		Email:       "demo@axionslab.com",
		Role:        "user",
		Permissions: []string{"chat:use"},
		Domain:      "Chat.AxionsLab.com",
		AppAccess:   []string{"main", "chat"},
		SessionID:   "s1",
	})
	require.NoError(t, err)

	claims, err := svc.VerifyType(issued.Token, TokenTypeAccess, "chat.axionslab.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "chat.axionslab.com", claims.Domain)
	assert.Equal(t, []string{"main", "chat"}, claims.AppAccess)
	assert.Equal(t, claims.IssuedAtUnix+int64((15*time.Minute).Seconds()), claims.ExpiresAtUnix)
}

func TestVerify_AudienceMismatch(t *testing.T) {
	svc, _ := newTestTokenService(t)

	access, err := svc.IssueAccess(AccessInput{UserID: "u1", Domain: "axionslab.com"})
	require.NoError(t, err)
	_, err = svc.Verify(access.Token, "chat.axionslab.com")
	assert.ErrorIs(t, err, ErrAudienceMismatch)

	temp, err := svc.IssueTemporary("u1", "chat.axionslab.com", nil)
	require.NoError(t, err)
	_, err = svc.VerifyType(temp.Token, TokenTypeTemporary, "admin.axionslab.com")
	assert.ErrorIs(t, err, ErrAudienceMismatch)

	_, err = svc.VerifyType(temp.Token, TokenTypeTemporary, "chat.axionslab.com")
	assert.NoError(t, err)
}

func TestVerify_AudienceAcceptsOriginForm(t *testing.T) {
	svc, _ := newTestTokenService(t)

	access, err := svc.IssueAccess(AccessInput{UserID: "u1", Domain: "Chat.AxionsLab.com"})
	require.NoError(t, err)
	for _, aud := range []string{"https://chat.axionslab.com", "chat.axionslab.com:443", "https://chat.axionslab.com/auth/callback"} {
		_, err = svc.Verify(access.Token, aud)
		assert.NoError(t, err, aud)
	}

	temp, err := svc.IssueTemporary("u1", "https://chat.axionslab.com/", nil)
	require.NoError(t, err)
	claims, err := svc.VerifyType(temp.Token, TokenTypeTemporary, "https://chat.axionslab.com")
	require.NoError(t, err)
	assert.Equal(t, "chat.axionslab.com", claims.TargetDomain)
}

func TestVerify_Expired(t *testing.T) {
	svc, now := newTestTokenService(t)

	temp, err := svc.IssueTemporary("u1", "chat.axionslab.com", nil)
	require.NoError(t, err)

	*now = now.Add(301 * time.Second)
	_, err = svc.VerifyType(temp.Token, TokenTypeTemporary, "chat.axionslab.com")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_RedundantExpiresAtClaim(t *testing.T) {
	svc, now := newTestTokenService(t)

	// exp is in the future but the expires_at claim is already in the past.
	claims := Claims{
		UserID:        "u1",
		Type:          TokenTypeAccess,
		IssuedAtUnix:  now.Add(-time.Hour).Unix(),
		ExpiresAtUnix: now.Add(-time.Minute).Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "axionslab-auth",
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
	require.NoError(t, err)

	_, err = svc.Verify(signed, "")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_InvalidSignature(t *testing.T) {
	svc, _ := newTestTokenService(t)
	other := NewTokenService(config.SecurityConfig{JWTSecret: "another-secret", Issuer: "axionslab-auth"})

	forged, err := other.IssueAccess(AccessInput{UserID: "u1", Domain: "axionslab.com"})
	require.NoError(t, err)

	_, err = svc.Verify(forged.Token, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = svc.Verify("not-a-token", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyType_RejectsOtherKinds(t *testing.T) {
	svc, _ := newTestTokenService(t)

	access, err := svc.IssueAccess(AccessInput{UserID: "u1", Domain: "axionslab.com"})
	require.NoError(t, err)
	_, err = svc.VerifyType(access.Token, TokenTypeRefresh, "")
	assert.ErrorIs(t, err, ErrWrongTokenType)

	refresh, err := svc.IssueRefresh("u1", "s1")
	require.NoError(t, err)
	_, err = svc.VerifyType(refresh.Token, TokenTypeTemporary, "")
	assert.ErrorIs(t, err, ErrWrongTokenType)

	claims, err := svc.VerifyType(refresh.Token, TokenTypeRefresh, "")
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.SessionID)
}

func TestVerify_WrongIssuer(t *testing.T) {
	svc, _ := newTestTokenService(t)
	other := NewTokenService(config.SecurityConfig{JWTSecret: "test-secret-0123456789abcdef0123", Issuer: "someone-else"})

	token, err := other.IssueRefresh("u1", "s1")
	require.NoError(t, err)
	_, err = svc.Verify(token.Token, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueState_RoundTrip(t *testing.T) {
	svc, _ := newTestTokenService(t)

	issued, err := svc.IssueState("axionslab.com", StatePayload{
		SourceURL:    "https://chat.axionslab.com/threads",
		TargetDomain: "chat.axionslab.com",
		App:          "chat",
	})
	require.NoError(t, err)

	claims, err := svc.VerifyType(issued.Token, TokenTypeState, "axionslab.com")
	require.NoError(t, err)
	require.NotNil(t, claims.State)
	assert.Equal(t, "chat", claims.State.App)
	assert.NotEmpty(t, claims.State.Nonce)
	assert.NotZero(t, claims.State.Timestamp)
}

func TestTokensAreUnique(t *testing.T) {
	svc, _ := newTestTokenService(t)

	a, err := svc.IssueRefresh("u1", "s1")
	require.NoError(t, err)
	b, err := svc.IssueRefresh("u1", "s1")
	require.NoError(t, err)
	assert.NotEqual(t, Fingerprint(a.Token), Fingerprint(b.Token))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("abc"), Fingerprint("abc"))
	assert.Len(t, Fingerprint("abc"), 64)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", Fingerprint("abc"))
}
