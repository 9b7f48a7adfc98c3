package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/biamino/team-report-bot/types"
)

// RedisSessionStore keeps one dialog session per user with a sliding
// TTL enforced by the Redis key expiry. Per-user mutual exclusion for
// read-modify-write transitions is provided by an in-process lock
// table keyed by user id.
type RedisSessionStore struct {
	client *RedisClient
	ttl    time.Duration

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewRedisSessionStore(redisClient *RedisClient, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisSessionStore{
		client: redisClient,
		ttl:    ttl,
		locks:  make(map[int64]*sync.Mutex),
	}
}

// Lock acquires the per-user transition lock and returns the release
// func. Two near-simultaneous inputs from the same user serialize here;
// different users proceed in parallel.
func (s *RedisSessionStore) Lock(userID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Get returns the user's session, or (nil, nil) when none exists or the
// TTL has expired the key.
func (s *RedisSessionStore) Get(ctx context.Context, userID int64) (*types.Session, error) {
	key := s.client.generateKey("session", fmt.Sprintf("%d", userID))

	var session types.Session
	if err := s.client.Get(ctx, key, &session); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &session, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, session *types.Session) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	key := s.client.generateKey("session", fmt.Sprintf("%d", session.UserID))
	return s.client.Set(ctx, key, session, s.ttl)
}

func (s *RedisSessionStore) Delete(ctx context.Context, userID int64) error {
	key := s.client.generateKey("session", fmt.Sprintf("%d", userID))
	return s.client.Del(ctx, key)
}
