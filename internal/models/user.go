package models

import "time"

type UserRole string

const (
	UserRoleUser       UserRole = "user"
	UserRoleAdmin      UserRole = "admin"
	UserRoleEnterprise UserRole = "enterprise"
	UserRoleSuperAdmin UserRole = "super_admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleUser, UserRoleAdmin, UserRoleEnterprise, UserRoleSuperAdmin:
		return true
	}
	return false
}

type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	PasswordHash   []byte    `json:"-"`
	FullName       *string   `json:"full_name,omitempty"`
	Role           UserRole  `json:"role"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	AvatarURL      *string   `json:"avatar_url,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	ProviderID     string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OrgID returns the organization id or "" when the user has none.
func (u User) OrgID() string {
	if u.OrganizationID == nil {
		return ""
	}
	return *u.OrganizationID
}

// UserSnapshot is the denormalized copy of a user kept on each session.
type UserSnapshot struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	FullName       *string  `json:"full_name,omitempty"`
	Role           UserRole `json:"role"`
	OrganizationID *string  `json:"organization_id,omitempty"`
}

func (u User) Snapshot() UserSnapshot {
	return UserSnapshot{
		ID:             u.ID,
		Email:          u.Email,
		FullName:       u.FullName,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
	}
}

// User rebuilds a read-only user from the snapshot.
func (s UserSnapshot) User() User {
	return User{
		ID:             s.ID,
		Email:          s.Email,
		FullName:       s.FullName,
		Role:           s.Role,
		OrganizationID: s.OrganizationID,
	}
}

type DeviceInfo struct {
	UserAgent string `json:"user_agent"`
	Platform  string `json:"platform"`
	Browser   string `json:"browser"`
}

// Session is one authenticated browser or device on one domain.
type Session struct {
	ID               string       `json:"id"`
	UserID           string       `json:"user_id"`
	User             UserSnapshot `json:"user"`
	Domain           string       `json:"domain"`
	TokenHash        string       `json:"token_hash"`
	RefreshTokenHash *string      `json:"refresh_token_hash,omitempty"`
	DeviceInfo       DeviceInfo   `json:"device_info"`
	IPAddress        string       `json:"ip_address"`
	IsActive         bool         `json:"is_active"`
	ExpiresAt        time.Time    `json:"expires_at"`
	LastActivityAt   time.Time    `json:"last_activity_at"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Valid reports whether the session is active and not past its outer expiry.
func (s Session) Valid(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}

// Profile is a third-party login normalized by an identity provider.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Provider  string `json:"provider"`
}
