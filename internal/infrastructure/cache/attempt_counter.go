// Package cache provides the shared fixed-window attempt counters used to
// throttle repeated connect attempts per user and platform.
package cache

import (
	"context"
	"time"
)

// AttemptCounter counts events in a fixed TTL window. Incr returns the
// count after incrementing; the first increment of a window starts its TTL.
type AttemptCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
	Close() error
}

// ConnectKey builds the counter key for connect attempts.
func ConnectKey(userID, platform string) string {
	return "connect:" + userID + ":" + platform
}
