package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (community) + Redis (pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetRunSummary retrieves a cached run summary.
	GetRunSummary(ctx context.Context, runID string) (*RunSummary, error)

	// SetRunSummary caches a run summary so listings and status checks
	// avoid loading the full run.
	SetRunSummary(ctx context.Context, runID string, summary *RunSummary, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used for ingest-rate accounting.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
