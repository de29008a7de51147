package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"axionslab/auth/internal/models"
)

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisSessionStore keeps sessions as JSON documents with secondary index
// keys for the access and refresh fingerprints. Keys expire with the session.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "auth:"
	}
	return &RedisSessionStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisSessionStore) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *RedisSessionStore) tokenKey(hash string) string {
	return s.prefix + "session:token:" + hash
}

func (s *RedisSessionStore) refreshKey(hash string) string {
	return s.prefix + "session:refresh:" + hash
}

func (s *RedisSessionStore) userKey(userID string) string {
	return s.prefix + "user:sessions:" + userID
}

func (s *RedisSessionStore) ttl(session models.Session) time.Duration {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *RedisSessionStore) Create(ctx context.Context, session models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := s.ttl(session)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(session.ID), data, ttl)
		pipe.Set(ctx, s.tokenKey(session.TokenHash), session.ID, ttl)
		if session.RefreshTokenHash != nil {
			pipe.Set(ctx, s.refreshKey(*session.RefreshTokenHash), session.ID, ttl)
		}
		pipe.SAdd(ctx, s.userKey(session.UserID), session.ID)
		return nil
	})
	return err
}

func (s *RedisSessionStore) GetByID(ctx context.Context, id string) (models.Session, error) {
	return s.load(ctx, s.client, id)
}

func (s *RedisSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (models.Session, error) {
	session, err := s.resolve(ctx, s.tokenKey(tokenHash))
	if err != nil {
		return models.Session{}, err
	}
	if session.TokenHash != tokenHash {
		return models.Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *RedisSessionStore) GetByRefreshHash(ctx context.Context, refreshHash string) (models.Session, error) {
	session, err := s.resolve(ctx, s.refreshKey(refreshHash))
	if err != nil {
		return models.Session{}, err
	}
	if session.RefreshTokenHash == nil || *session.RefreshTokenHash != refreshHash {
		return models.Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *RedisSessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, func(session *models.Session) bool {
		session.LastActivityAt = at
		return true
	})
}

// RotateTokens replaces both fingerprints under WATCH so that two refreshes
// racing on the same refresh token cannot both win.
func (s *RedisSessionStore) RotateTokens(ctx context.Context, id, oldRefreshHash, newTokenHash, newRefreshHash string, at time.Time) error {
	oldRefreshKey := s.refreshKey(oldRefreshHash)
	sessionKey := s.sessionKey(id)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, oldRefreshKey).Result()
		if errors.Is(err, redis.Nil) || (err == nil && owner != id) {
			return ErrSessionConflict
		}
		if err != nil {
			return err
		}

		session, err := s.load(ctx, tx, id)
		if errors.Is(err, ErrSessionNotFound) {
			return ErrSessionConflict
		}
		if err != nil {
			return err
		}
		if !session.IsActive || session.RefreshTokenHash == nil || *session.RefreshTokenHash != oldRefreshHash {
			return ErrSessionConflict
		}

		oldTokenKey := s.tokenKey(session.TokenHash)
		session.TokenHash = newTokenHash
		session.RefreshTokenHash = &newRefreshHash
		session.LastActivityAt = at
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		ttl := s.ttl(session)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey, data, ttl)
			pipe.Del(ctx, oldRefreshKey, oldTokenKey)
			pipe.Set(ctx, s.tokenKey(newTokenHash), id, ttl)
			pipe.Set(ctx, s.refreshKey(newRefreshHash), id, ttl)
			return nil
		})
		return err
	}, oldRefreshKey, sessionKey)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrSessionConflict
	}
	return err
}

func (s *RedisSessionStore) Deactivate(ctx context.Context, id string) error {
	err := s.update(ctx, id, func(session *models.Session) bool {
		if !session.IsActive {
			return false
		}
		session.IsActive = false
		return true
	})
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

func (s *RedisSessionStore) DeactivateByUser(ctx context.Context, userID string) (int64, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, err
	}

	var count int64
	for _, id := range ids {
		changed := false
		err := s.update(ctx, id, func(session *models.Session) bool {
			changed = session.IsActive
			session.IsActive = false
			return changed
		})
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return count, err
		}
		if changed {
			count++
		}
	}
	return count, nil
}

func (s *RedisSessionStore) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]models.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.load(ctx, s.client, id)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})
	return sessions, nil
}

// PurgeExpired drops inactive sessions idle since before and prunes user
// index entries whose session key already expired.
func (s *RedisSessionStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	var (
		removed int64
		cursor  uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.userKey("*"), 100).Result()
		if err != nil {
			return removed, err
		}
		for _, userKey := range keys {
			ids, err := s.client.SMembers(ctx, userKey).Result()
			if err != nil {
				return removed, err
			}
			for _, id := range ids {
				session, err := s.load(ctx, s.client, id)
				switch {
				case errors.Is(err, ErrSessionNotFound):
				case err != nil:
					return removed, err
				case !session.IsActive && session.LastActivityAt.Before(before):
					if err := s.delete(ctx, session); err != nil {
						return removed, err
					}
				default:
					continue
				}
				if err := s.client.SRem(ctx, userKey, id).Err(); err != nil {
					return removed, err
				}
				removed++
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *RedisSessionStore) delete(ctx context.Context, session models.Session) error {
	keys := []string{s.sessionKey(session.ID), s.tokenKey(session.TokenHash)}
	if session.RefreshTokenHash != nil {
		keys = append(keys, s.refreshKey(*session.RefreshTokenHash))
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisSessionStore) resolve(ctx context.Context, indexKey string) (models.Session, error) {
	id, err := s.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, err
	}
	return s.load(ctx, s.client, id)
}

func (s *RedisSessionStore) load(ctx context.Context, c getter, id string) (models.Session, error) {
	raw, err := c.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, err
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return models.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return session, nil
}

const maxUpdateAttempts = 5

// update rewrites the session document in place under WATCH, keeping its
// TTL. mutate returns false when nothing needs writing. A write that races
// another update is retried against the fresh document.
func (s *RedisSessionStore) update(ctx context.Context, id string, mutate func(*models.Session) bool) error {
	key := s.sessionKey(id)
	apply := func(tx *redis.Tx) error {
		session, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !mutate(&session) {
			return nil
		}
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, apply, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrSessionConflict
}
