package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"axionslab/auth/internal/models"
	"axionslab/auth/internal/policy"
	"axionslab/auth/internal/security"
)

// CrossDomainAuthService runs the handshake that carries a session from the
// identity domain to the other allowed domains.
type CrossDomainAuthService struct {
	sessions  *SessionService
	tokens    *security.TokenService
	policy    *policy.Policy
	loginPath string
	log       zerolog.Logger
}

func NewCrossDomainAuthService(
	sessions *SessionService,
	tokens *security.TokenService,
	pol *policy.Policy,
	loginPath string,
	log zerolog.Logger,
) *CrossDomainAuthService {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &CrossDomainAuthService{
		sessions:  sessions,
		tokens:    tokens,
		policy:    pol,
		loginPath: loginPath,
		log:       log,
	}
}

// RedirectConfig describes where a user came from and wants to end up.
type RedirectConfig struct {
	SourceURL    string
	TargetDomain string
	App          string
	Provider     string
}

type AppAuthResult struct {
	RedirectURL string `json:"redirect_url"`
	TempToken   string `json:"temp_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type CheckSessionResult struct {
	Authenticated bool
	RedirectURL   string
	TempToken     string
	ExpiresIn     int
}

type DomainInfo struct {
	Domain      string   `json:"domain"`
	IsValid     bool     `json:"is_valid"`
	AllowedApps []string `json:"allowed_apps"`
}

// ValidateDomainAccess reports whether user may open app on targetDomain.
func (s *CrossDomainAuthService) ValidateDomainAccess(user models.User, targetDomain, app string) bool {
	return s.authorize(user.Role, targetDomain, app) == nil
}

// ResolveApp validates the domain and app pair a caller asked for. An empty
// app resolves to the first app served on the domain.
func (s *CrossDomainAuthService) ResolveApp(targetDomain, app string) (string, string, error) {
	domain := policy.NormalizeDomain(targetDomain)
	if domain == "" {
		return "", "", ValidationError("domain is required")
	}
	if !s.policy.IsAllowedDomain(domain) {
		return "", "", ErrDomainNotAllowed
	}

	app = strings.ToLower(strings.TrimSpace(app))
	served := s.policy.DomainApps(domain)
	if app == "" {
		if len(served) == 0 {
			return "", "", ValidationError("app is required")
		}
		app = served[0]
	}
	if !s.policy.KnownApp(app) {
		return "", "", ValidationError("unknown app")
	}
	if !contains(served, app) {
		return "", "", ErrAppNotAllowed
	}
	return domain, app, nil
}

func (s *CrossDomainAuthService) authorize(role models.UserRole, targetDomain, app string) error {
	_, app, err := s.ResolveApp(targetDomain, app)
	if err != nil {
		return err
	}
	if !s.policy.CanAccessApp(role, app) {
		return ErrAppNotAllowed
	}
	return nil
}

// GenerateAuthRedirectURL points at the identity domain's login page and
// carries a signed state token describing the original request.
func (s *CrossDomainAuthService) GenerateAuthRedirectURL(cfg RedirectConfig) (string, error) {
	state, err := s.IssueState(cfg)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("redirect", cfg.SourceURL)
	q.Set("app", cfg.App)
	q.Set("source", policy.NormalizeDomain(cfg.TargetDomain))
	q.Set("state", state)

	u := url.URL{
		Scheme:   "https",
		Host:     s.policy.IdentityDomain(),
		Path:     s.loginPath,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// IssueState signs the redirect context for the identity domain.
func (s *CrossDomainAuthService) IssueState(cfg RedirectConfig) (string, error) {
	issued, err := s.tokens.IssueState(s.policy.IdentityDomain(), security.StatePayload{
		SourceURL:    cfg.SourceURL,
		TargetDomain: policy.NormalizeDomain(cfg.TargetDomain),
		App:          strings.ToLower(cfg.App),
		Provider:     cfg.Provider,
	})
	if err != nil {
		return "", fmt.Errorf("issue state: %w", err)
	}
	return issued.Token, nil
}

// VerifyState checks a state token minted by IssueState.
func (s *CrossDomainAuthService) VerifyState(state string) (*security.StatePayload, error) {
	claims, err := s.tokens.VerifyType(state, security.TokenTypeState, s.policy.IdentityDomain())
	if err != nil {
		return nil, AuthenticationError("invalid or expired state", err)
	}
	return claims.State, nil
}

// HandleAppAuthentication mints a temporary token for targetDomain and the
// callback URL the browser should follow there.
func (s *CrossDomainAuthService) HandleAppAuthentication(app string, session models.Session, targetDomain string) (*AppAuthResult, error) {
	domain, app, err := s.ResolveApp(targetDomain, app)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanAccessApp(session.User.Role, app) {
		return nil, ErrAppNotAllowed
	}

	temp, err := s.sessions.GenerateCrossDomainToken(session, domain)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("token", temp.Token)
	q.Set("return_to", s.policy.ReturnPath(app))
	u := url.URL{
		Scheme:   "https",
		Host:     domain,
		Path:     "/auth/callback",
		RawQuery: q.Encode(),
	}

	s.log.Info().
		Str("session_id", session.ID).
		Str("user_id", session.UserID).
		Str("target_domain", domain).
		Str("app", app).
		Msg("temporary token issued")

	return &AppAuthResult{
		RedirectURL: u.String(),
		TempToken:   temp.Token,
		ExpiresIn:   int(s.tokens.TemporaryTTL() / time.Second),
	}, nil
}

// ValidateAndExchangeTempToken exchanges a temporary token on an allowed
// domain for a fresh session there.
func (s *CrossDomainAuthService) ValidateAndExchangeTempToken(ctx context.Context, tempToken, targetDomain string, meta RequestMeta) (*SessionTokens, error) {
	if strings.TrimSpace(tempToken) == "" {
		return nil, ValidationError("token is required")
	}
	domain := policy.NormalizeDomain(targetDomain)
	if domain == "" {
		return nil, ValidationError("target_domain is required")
	}
	if !s.policy.IsAllowedDomain(domain) {
		return nil, ErrDomainNotAllowed
	}
	return s.sessions.ExchangeTempToken(ctx, tempToken, domain, meta)
}

// CheckSession decides where a browser arriving at targetDomain goes next:
// back to the identity login, or on to the target with a temporary token.
func (s *CrossDomainAuthService) CheckSession(ctx context.Context, accessToken, targetDomain, app string) (*CheckSessionResult, error) {
	domain, app, err := s.ResolveApp(targetDomain, app)
	if err != nil {
		return nil, err
	}

	toLogin := func() (*CheckSessionResult, error) {
		redirect, err := s.GenerateAuthRedirectURL(RedirectConfig{
			SourceURL:    "https://" + domain + s.policy.ReturnPath(app),
			TargetDomain: domain,
			App:          app,
		})
		if err != nil {
			return nil, err
		}
		return &CheckSessionResult{RedirectURL: redirect}, nil
	}

	if strings.TrimSpace(accessToken) == "" {
		return toLogin()
	}
	session, err := s.sessions.ValidateSession(ctx, accessToken)
	if IsNotAuthenticated(err) {
		return toLogin()
	}
	if err != nil {
		return nil, err
	}

	result, err := s.HandleAppAuthentication(app, session, domain)
	if err != nil {
		return nil, err
	}
	return &CheckSessionResult{
		Authenticated: true,
		RedirectURL:   result.RedirectURL,
		TempToken:     result.TempToken,
		ExpiresIn:     result.ExpiresIn,
	}, nil
}

// SessionStatus reports whether accessToken holds a live session on domain.
// An empty domain matches any session.
func (s *CrossDomainAuthService) SessionStatus(ctx context.Context, accessToken, domain string) (models.Session, bool, error) {
	if strings.TrimSpace(accessToken) == "" {
		return models.Session{}, false, nil
	}
	session, err := s.sessions.ValidateSession(ctx, accessToken)
	if IsNotAuthenticated(err) {
		return models.Session{}, false, nil
	}
	if err != nil {
		return models.Session{}, false, err
	}
	if d := policy.NormalizeDomain(domain); d != "" && d != session.Domain {
		return models.Session{}, false, nil
	}
	return session, true, nil
}

func (s *CrossDomainAuthService) DomainInfo(domain string) DomainInfo {
	d := policy.NormalizeDomain(domain)
	return DomainInfo{
		Domain:      d,
		IsValid:     s.policy.IsAllowedDomain(d),
		AllowedApps: s.policy.DomainApps(d),
	}
}

func (s *CrossDomainAuthService) AppInfo(app string) (policy.AppInfo, error) {
	info, ok := s.policy.AppInfo(app)
	if !ok {
		return policy.AppInfo{}, ValidationError("unknown app")
	}
	return info, nil
}

// ReturnPath is where app sends users after a completed handshake.
func (s *CrossDomainAuthService) ReturnPath(app string) string {
	return s.policy.ReturnPath(app)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
