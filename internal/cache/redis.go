package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladimiradmaev/dosekit/internal/domain"
)

// RedisStore caches computed timelines in Redis so multiple instances share
// them.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed timeline store.
func NewRedisStore(redisHost, redisPort string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", redisHost, redisPort),
		Password:     "", // no password
		DB:           0,  // default DB
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		ttl:    DefaultTTL,
	}, nil
}

// GetInsulinOnBoard returns the cached insulin-on-board timeline for a user.
func (s *RedisStore) GetInsulinOnBoard(ctx context.Context, userID uint) ([]domain.InsulinValue, bool) {
	var values []domain.InsulinValue
	if !s.get(ctx, s.iobKey(userID), &values) {
		return nil, false
	}
	return values, true
}

// SetInsulinOnBoard stores the insulin-on-board timeline for a user.
func (s *RedisStore) SetInsulinOnBoard(ctx context.Context, userID uint, values []domain.InsulinValue) {
	s.set(ctx, s.iobKey(userID), values)
}

// GetCarbsOnBoard returns the cached carbs-on-board timeline for a user.
func (s *RedisStore) GetCarbsOnBoard(ctx context.Context, userID uint) ([]domain.CarbValue, bool) {
	var values []domain.CarbValue
	if !s.get(ctx, s.cobKey(userID), &values) {
		return nil, false
	}
	return values, true
}

// SetCarbsOnBoard stores the carbs-on-board timeline for a user.
func (s *RedisStore) SetCarbsOnBoard(ctx context.Context, userID uint, values []domain.CarbValue) {
	s.set(ctx, s.cobKey(userID), values)
}

// InvalidateUser drops all cached timelines for a user.
func (s *RedisStore) InvalidateUser(ctx context.Context, userID uint) {
	s.client.Del(ctx, s.iobKey(userID), s.cobKey(userID))
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) iobKey(userID uint) string {
	return fmt.Sprintf("user:%d:iob", userID)
}

func (s *RedisStore) cobKey(userID uint) string {
	return fmt.Sprintf("user:%d:cob", userID)
}

func (s *RedisStore) get(ctx context.Context, key string, dest interface{}) bool {
	result := s.client.Get(ctx, key)
	if result.Err() == redis.Nil {
		return false
	}
	if result.Err() != nil {
		return false
	}
	if err := json.Unmarshal([]byte(result.Val()), dest); err != nil {
		return false
	}
	return true
}

func (s *RedisStore) set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.client.Set(ctx, key, data, s.ttl)
}
