package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"axionslab/auth/internal/ids"
	"axionslab/auth/internal/models"
	"axionslab/auth/internal/oauth"
	"axionslab/auth/internal/repository"
	"axionslab/auth/internal/security"
)

// AuthService handles the ways a user first proves who they are: password
// login, registration and OAuth. Each ends in SessionService.CreateSession.
type AuthService struct {
	users     UserStore
	hasher    PasswordHasher
	sessions  *SessionService
	cross     *CrossDomainAuthService
	providers *oauth.Registry
	log       zerolog.Logger
}

func NewAuthService(
	users UserStore,
	hasher PasswordHasher,
	sessions *SessionService,
	cross *CrossDomainAuthService,
	providers *oauth.Registry,
	log zerolog.Logger,
) *AuthService {
	if providers == nil {
		providers = oauth.NewRegistry()
	}
	return &AuthService{
		users:     users,
		hasher:    hasher,
		sessions:  sessions,
		cross:     cross,
		providers: providers,
		log:       log,
	}
}

type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	*SessionTokens
	User models.User
	// State is set when the login continues a cross-domain redirect.
	State *security.StatePayload
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput, meta RequestMeta) (*AuthResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ValidationError("a valid email is required")
	}
	if len(input.Password) < 8 {
		return nil, ValidationError("password must be at least 8 characters")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         models.UserRoleUser,
		Provider:     "password",
	}
	if name := strings.TrimSpace(input.FullName); name != "" {
		user.FullName = &name
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info().Str("user_id", user.ID).Msg("user registered")

	tokens, err := s.sessions.CreateSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	return &AuthResult{SessionTokens: tokens, User: user}, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput, meta RequestMeta) (*AuthResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, ValidationError("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if len(user.PasswordHash) == 0 {
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(input.Password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.sessions.CreateSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	return &AuthResult{SessionTokens: tokens, User: user}, nil
}

// OAuthStart returns the provider URL a browser should be sent to. The
// redirect context travels in the signed state parameter.
func (s *AuthService) OAuthStart(providerName string, redirect RedirectConfig) (string, error) {
	p, err := s.providers.Get(providerName)
	if err != nil {
		return "", ValidationError("unsupported oauth provider")
	}
	redirect.Provider = p.Name()
	state, err := s.cross.IssueState(redirect)
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

// OAuthLogin completes a provider login: the state must be one we signed for
// the same provider, and the code must exchange for a verified email.
func (s *AuthService) OAuthLogin(ctx context.Context, providerName, code, state string, meta RequestMeta) (*AuthResult, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(state) == "" {
		return nil, ValidationError("code and state are required")
	}
	p, err := s.providers.Get(providerName)
	if err != nil {
		return nil, ValidationError("unsupported oauth provider")
	}

	payload, err := s.cross.VerifyState(state)
	if err != nil {
		return nil, err
	}
	if payload.Provider != p.Name() {
		return nil, AuthenticationError("invalid or expired state", nil)
	}

	profile, err := p.Exchange(ctx, code)
	if err != nil {
		s.log.Warn().Err(err).Str("provider", p.Name()).Msg("oauth exchange failed")
		return nil, AuthenticationError("oauth login failed", err)
	}

	user, err := s.users.UpsertOAuth(ctx, ids.New(), profile)
	if err != nil {
		return nil, fmt.Errorf("upsert oauth user: %w", err)
	}

	tokens, err := s.sessions.CreateSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	result := &AuthResult{SessionTokens: tokens, User: user}
	if payload.TargetDomain != "" {
		result.State = payload
	}
	return result, nil
}

// CurrentUser returns the stored user behind a session, falling back to the
// session snapshot when the record is gone.
func (s *AuthService) CurrentUser(ctx context.Context, session models.Session) (models.User, error) {
	user, err := s.users.GetByID(ctx, session.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return session.User.User(), nil
	}
	if err != nil {
		return models.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
