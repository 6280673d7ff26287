// Package cache provides the two cache tiers in front of the workbook reader:
// a per-process memory map and a shared Redis instance.
package cache

import (
	"context"
	"time"
)

// Layer is one cache tier. A miss is (nil, false, nil).
type Layer interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
