package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require merchantID for strict per-merchant isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, merchantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, merchantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, merchantID string, key string) error

	// GetPolicy retrieves a cached merchant policy.
	GetPolicy(ctx context.Context, merchantID string) (*MerchantPolicy, error)

	// SetPolicy caches a merchant policy.
	SetPolicy(ctx context.Context, merchantID string, policy *MerchantPolicy, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for per-buyer return frequency tracking.
	IncrementCounter(ctx context.Context, merchantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
