// Package repotest provides in-memory stand-ins for repositories in tests.
package repotest

import (
	"context"
	"sync"
	"time"

	"axionslab/auth/internal/models"
	"axionslab/auth/internal/repository"
)

type Users struct {
	mu      sync.Mutex
	byID    map[string]models.User
	byEmail map[string]string
	// Err, when set, is returned by every call.
	Err error
}

func NewUsers(users ...models.User) *Users {
	u := &Users{byID: map[string]models.User{}, byEmail: map[string]string{}}
	for _, user := range users {
		u.byID[user.ID] = user
		u.byEmail[user.Email] = user.ID
	}
	return u
}

func (u *Users) GetByID(_ context.Context, id string) (models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return models.User{}, u.Err
	}
	user, ok := u.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (u *Users) GetByEmail(_ context.Context, email string) (models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return models.User{}, u.Err
	}
	id, ok := u.byEmail[email]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u.byID[id], nil
}

func (u *Users) Create(_ context.Context, user models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return u.Err
	}
	if _, ok := u.byEmail[user.Email]; ok {
		return repository.ErrEmailTaken
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	u.byID[user.ID] = user
	u.byEmail[user.Email] = user.ID
	return nil
}

func (u *Users) UpsertOAuth(_ context.Context, id string, profile models.Profile) (models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return models.User{}, u.Err
	}
	if existing, ok := u.byEmail[profile.Email]; ok {
		user := u.byID[existing]
		user.Provider = profile.Provider
		user.ProviderID = profile.ID
		u.byID[existing] = user
		return user, nil
	}
	user := models.User{
		ID:         id,
		Email:      profile.Email,
		Role:       models.UserRoleUser,
		Provider:   profile.Provider,
		ProviderID: profile.ID,
	}
	if profile.Name != "" {
		name := profile.Name
		user.FullName = &name
	}
	u.byID[id] = user
	u.byEmail[user.Email] = id
	return user, nil
}
