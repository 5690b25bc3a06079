// Package cache stores short-lived copies of backend listings.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry
type Cache interface {
	// Get returns the value and true on a hit. An expired or missing
	// entry is a miss, not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Options selects and configures a cache backend
type Options struct {
	Type string // "memory", "redis", "none"
	URL  string
}

// New builds the backend named by opts.Type
func New(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Type {
	case "", "memory":
		return NewMemoryCache(), nil
	case "redis":
		return NewRedisCache(ctx, opts.URL)
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", opts.Type)
	}
}

// Nop never stores anything
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Delete(context.Context, string) error                     { return nil }
func (Nop) Close() error                                             { return nil }
