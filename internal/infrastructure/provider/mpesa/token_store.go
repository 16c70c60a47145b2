package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// CachedToken is a gateway bearer token and the moment it was issued.
type CachedToken struct {
	AccessToken string        `json:"access_token"`
	IssuedAt    time.Time     `json:"issued_at"`
	Lifetime    time.Duration `json:"lifetime"`
}

// Usable reports whether the token may still be handed to a request, leaving margin
// for clock drift and the request's own duration.
func (t *CachedToken) Usable(now time.Time, margin time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return now.Sub(t.IssuedAt) < t.Lifetime-margin
}

// TokenStore persists the current token so that processes can share it.
type TokenStore interface {
	// Load returns nil, nil when no token is stored.
	Load(ctx context.Context) (*CachedToken, error)
	Save(ctx context.Context, token *CachedToken) error
	Delete(ctx context.Context) error
}

// MemoryTokenStore keeps the token in process memory.
type MemoryTokenStore struct {
	token atomic.Pointer[CachedToken]
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load(ctx context.Context) (*CachedToken, error) {
	return s.token.Load(), nil
}

func (s *MemoryTokenStore) Save(ctx context.Context, token *CachedToken) error {
	s.token.Store(token)
	return nil
}

func (s *MemoryTokenStore) Delete(ctx context.Context) error {
	s.token.Store(nil)
	return nil
}

// RedisTokenStore shares the token between every process pointing at the same Redis.
type RedisTokenStore struct {
	client redis.Cmdable
	key    string
}

func NewRedisTokenStore(client redis.Cmdable, key string) *RedisTokenStore {
	return &RedisTokenStore{client: client, key: key}
}

func (s *RedisTokenStore) Load(ctx context.Context) (*CachedToken, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	var token CachedToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode stored token: %w", err)
	}
	return &token, nil
}

func (s *RedisTokenStore) Save(ctx context.Context, token *CachedToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, token.Lifetime).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
