// Package cache wraps Redis for search-result caching and per-chat
// conversation state.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/pawpoint/pawpoint/internal/telemetry"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisClientInterface defines the Redis client surface used by the
// service, kept narrow so tests can stub it.
type RedisClientInterface interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisService provides Redis operations for the bot
type RedisService struct {
	client RedisClientInterface
	config *RedisConfig
}

// CacheEntry represents a cached item with metadata
type CacheEntry struct {
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	TTL       int         `json:"ttl"`
	Version   string      `json:"version"`
}

// Default TTL values in seconds
var (
	DefaultTTL   = 3600
	PlacesTTL    = 600
	ChatStateTTL = 1800
)

// NewRedisService creates a new Redis service instance with the
// OpenTelemetry tracing hook attached.
func NewRedisService(config *RedisConfig) (*RedisService, error) {
	ctx := telemetry.WithCorrelationID(context.Background(), telemetry.NewCorrelationID())
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "redis_connection",
		"service":   "cache",
	})

	if config == nil {
		config = getConfigFromEnv()
	}

	logger = logger.WithFields(map[string]interface{}{
		"addr":      config.Addr,
		"db":        config.DB,
		"pool_size": config.PoolSize,
	})

	logger.Info("Establishing Redis connection")

	rdb := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		PoolSize:   config.PoolSize,
		MaxRetries: 3,
	})
	rdb.AddHook(redisotel.NewTracingHook())

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connected successfully")
	return &RedisService{
		client: rdb,
		config: config,
	}, nil
}

// getConfigFromEnv loads Redis configuration from environment variables
func getConfigFromEnv() *RedisConfig {
	db, _ := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	poolSize, _ := strconv.Atoi(getEnvOrDefault("REDIS_POOL_SIZE", "10"))

	return &RedisConfig{
		Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		PoolSize: poolSize,
	}
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Basic Redis Operations

// Set stores a value with TTL
func (r *RedisService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":   "redis_set",
		"key":         key,
		"ttl_seconds": ttl.Seconds(),
		"service":     "cache",
	})

	data, err := json.Marshal(value)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal value for cache")
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if ttl == 0 {
		ttl = time.Duration(DefaultTTL) * time.Second
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.WithError(err).Error("Failed to set cache value")
		return err
	}
	logger.Debug("Cache value set")
	return nil
}

// GetWithUnmarshal retrieves a value and unmarshals it into dest
func (r *RedisService) GetWithUnmarshal(ctx context.Context, key string, dest interface{}) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "redis_get",
		"key":       key,
		"service":   "cache",
	})

	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			logger.Debug("Cache miss")
			return fmt.Errorf("key not found: %s", key)
		}
		logger.WithError(err).Error("Failed to get cache value")
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		logger.WithError(err).Error("Failed to unmarshal cache value")
		return err
	}
	logger.Debug("Cache hit")
	return nil
}

// Delete removes a key
func (r *RedisService) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Exists checks if a key exists
func (r *RedisService) Exists(ctx context.Context, key string) (bool, error) {
	result, err := r.client.Exists(ctx, key).Result()
	return result > 0, err
}

// Expire sets TTL for a key
func (r *RedisService) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

// TTL gets remaining time to live
func (r *RedisService) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, key).Result()
}

// Places Result Caching

// SetPlaces caches a finished search result under the given request key.
func (r *RedisService) SetPlaces(ctx context.Context, key string, data interface{}) error {
	entry := CacheEntry{
		Data:      data,
		Timestamp: time.Now(),
		TTL:       PlacesTTL,
		Version:   "1.0",
	}
	return r.Set(ctx, fmt.Sprintf("places:%s", key), entry, time.Duration(PlacesTTL)*time.Second)
}

// GetPlaces retrieves a cached search result. The entry timestamp is
// checked so a stale envelope never outlives its declared TTL even if
// the Redis expiry drifted.
func (r *RedisService) GetPlaces(ctx context.Context, key string, dest interface{}) error {
	var entry CacheEntry
	if err := r.GetWithUnmarshal(ctx, fmt.Sprintf("places:%s", key), &entry); err != nil {
		return err
	}

	if time.Since(entry.Timestamp) > time.Duration(entry.TTL)*time.Second {
		return fmt.Errorf("cache entry expired")
	}

	dataBytes, err := json.Marshal(entry.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(dataBytes, dest)
}

// InvalidatePlaces removes all cached search results.
func (r *RedisService) InvalidatePlaces(ctx context.Context) error {
	_, err := r.DeletePattern(ctx, "places:*")
	return err
}

// Chat Conversation State

// SetChatState stores per-chat conversation state, such as the last
// shared location awaiting a category choice.
func (r *RedisService) SetChatState(ctx context.Context, chatID int64, state interface{}) error {
	return r.Set(ctx, fmt.Sprintf("chat:%d:state", chatID), state, time.Duration(ChatStateTTL)*time.Second)
}

// GetChatState retrieves per-chat conversation state
func (r *RedisService) GetChatState(ctx context.Context, chatID int64, dest interface{}) error {
	return r.GetWithUnmarshal(ctx, fmt.Sprintf("chat:%d:state", chatID), dest)
}

// DeleteChatState removes per-chat conversation state
func (r *RedisService) DeleteChatState(ctx context.Context, chatID int64) error {
	return r.Delete(ctx, fmt.Sprintf("chat:%d:state", chatID))
}

// Cache Invalidation Patterns

// DeletePattern removes keys matching a pattern
func (r *RedisService) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	keys, err := r.client.Keys(ctx, pattern).Result()
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return r.client.Del(ctx, keys...).Result()
}

// Health and Monitoring

// HealthCheck verifies Redis connectivity
func (r *RedisService) HealthCheck(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	return r.client.Close()
}
