// Package cachestore provides the shared key/value cache behind the
// cache-aside layer: string values with a per-key TTL.
//
// Two concurrent misses for the same key may both fetch upstream and both
// write the cache. That duplicate work is an accepted cost (idempotent
// overwrite), not a correctness bug; there is deliberately no cross-client
// locking around the miss path.
package cachestore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is the cache contract: Get returns (value, found), Set stores a
// value that expires after ttl.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

// Config selects and configures a backend.
//
// Driver values:
//   - "memory": in-process TTL map (single instance deployments, tests)
//   - "redis": shared Redis instance (horizontal scaling)
type Config struct {
	Driver string
	Addr   string // redis only, host:port
	DB     int    // redis only
}

// Open initializes the configured backend. An empty driver defaults to the
// in-memory store.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(cfg)
	default:
		return nil, errors.New("unknown cache driver: " + cfg.Driver)
	}
}
