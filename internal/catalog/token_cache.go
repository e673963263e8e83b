package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache stores the current catalog access token.
type TokenCache interface {
	Get(ctx context.Context) (string, bool)
	Set(ctx context.Context, token string, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// RedisTokenCache keeps the token under a single key with a TTL.
type RedisTokenCache struct {
	client *redis.Client
	key    string
}

// NewRedisTokenCache creates a cache on client.  Key defaults to
// "catalog:token".
func NewRedisTokenCache(client *redis.Client, key string) *RedisTokenCache {
	if key == "" {
		key = "catalog:token"
	}
	return &RedisTokenCache{client: client, key: key}
}

func (s *RedisTokenCache) Get(ctx context.Context) (string, bool) {
	tok, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		// redis.Nil and transport errors both mean "fetch a new token".
		return "", false
	}
	return tok, tok != ""
}

func (s *RedisTokenCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key, token, ttl).Err()
}

func (s *RedisTokenCache) Clear(ctx context.Context) error {
	err := s.client.Del(ctx, s.key).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// MemoryTokenCache is a process-local TokenCache.
type MemoryTokenCache struct {
	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{now: time.Now}
}

func (m *MemoryTokenCache) Get(context.Context) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" || !m.now().Before(m.expires) {
		return "", false
	}
	return m.token, true
}

func (m *MemoryTokenCache) Set(_ context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.expires = m.now().Add(ttl)
	return nil
}

func (m *MemoryTokenCache) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
