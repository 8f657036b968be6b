package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/backstage/allegro/config"
	"example.com/backstage/allegro/internal/marketplace"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// ErrCacheMiss is returned when a key is absent
var ErrCacheMiss = errors.New("key not found in cache")

// RedisCache provides caching using Redis
type RedisCache struct {
	client  *redis.Client
	enabled bool
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return newRedisCache(client), nil
}

func newRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, enabled: true}
}

// Enabled reports whether the cache is backed by Redis
func (c *RedisCache) Enabled() bool {
	return c != nil && c.enabled
}

// Get decodes the JSON value stored under key
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.Enabled() {
		return errors.New("cache is disabled")
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}
	return nil
}

// Set stores value as JSON under key with the given expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return errors.New("cache is disabled")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}
	return nil
}

// Delete removes key
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if !c.Enabled() {
		return errors.New("cache is disabled")
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "failed to delete value from Redis")
	}
	return nil
}

// Ping checks the connection
func (c *RedisCache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.Enabled() || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// GetSessionCacheKey generates a cache key for a seller's marketplace session
func GetSessionCacheKey(userID uint) string {
	return fmt.Sprintf("allegro:session:%d", userID)
}

// SessionStore keeps marketplace sessions in Redis so every worker shares them
type SessionStore struct {
	cache *RedisCache
	now   func() time.Time
}

// NewSessionStore creates a Redis-backed session store
func NewSessionStore(cache *RedisCache) *SessionStore {
	return &SessionStore{cache: cache, now: time.Now}
}

func (s *SessionStore) Get(ctx context.Context, userID uint) (marketplace.Session, bool, error) {
	var session marketplace.Session
	err := s.cache.Get(ctx, GetSessionCacheKey(userID), &session)
	if errors.Is(err, ErrCacheMiss) {
		return marketplace.Session{}, false, nil
	}
	if err != nil {
		return marketplace.Session{}, false, err
	}
	return session, true, nil
}

// Set stores the session until it expires
func (s *SessionStore) Set(ctx context.Context, userID uint, session marketplace.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, userID)
	}
	return s.cache.Set(ctx, GetSessionCacheKey(userID), session, ttl)
}

func (s *SessionStore) Delete(ctx context.Context, userID uint) error {
	return s.cache.Delete(ctx, GetSessionCacheKey(userID))
}
