// Package session keeps login sessions in Redis.
//
// A session is a key "session:<id>" holding the user id, with the session TTL
// as Redis expiry. Each user also has a set "session:user:<user id>" listing
// the ids of their sessions so all of them can be revoked at once, for
// example when the account is scheduled for deletion.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "session:"

type Manager struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewManager(client redis.Cmdable, ttl time.Duration) *Manager {
	return &Manager{client: client, prefix: defaultPrefix, ttl: ttl}
}

func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) key(id string) string        { return m.prefix + id }
func (m *Manager) userKey(id uuid.UUID) string { return m.prefix + "user:" + id.String() }

func (m *Manager) Create(ctx context.Context, userID uuid.UUID) (*Session, error) {
	s := newSession(userID, m.ttl)

	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, m.key(s.ID), userID.String(), m.ttl)
		pipe.SAdd(ctx, m.userKey(userID), s.ID)
		pipe.Expire(ctx, m.userKey(userID), m.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis session: create failed: %w", err)
	}
	return s, nil
}

// Validate returns the live session with the given id or ErrInvalidSession.
func (m *Manager) Validate(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidSession
	}

	pipe := m.client.Pipeline()
	get := pipe.Get(ctx, m.key(id))
	ttl := pipe.PTTL(ctx, m.key(id))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis session: validate failed: %w", err)
	}

	raw, err := get.Result()
	if err == redis.Nil {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("redis session: validate failed: %w", err)
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrInvalidSession
	}

	return &Session{ID: id, UserID: userID, ExpiresAt: time.Now().Add(ttl.Val())}, nil
}

// Delete removes one session. Deleting an unknown session is not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	userID, err := m.client.Get(ctx, m.key(id)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis session: delete failed: %w", err)
	}

	_, err = m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, m.key(id))
		pipe.SRem(ctx, m.prefix+"user:"+userID, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis session: delete failed: %w", err)
	}
	return nil
}

// DeleteAll removes every session of the user.
func (m *Manager) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	ids, err := m.client.SMembers(ctx, m.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("redis session: delete all failed: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, m.key(id))
	}
	keys = append(keys, m.userKey(userID))

	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis session: delete all failed: %w", err)
	}
	return nil
}
