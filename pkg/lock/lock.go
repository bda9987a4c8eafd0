// Package lock guards the schedule sweep so several scheduler processes can share one store.
package lock

import (
	"context"
	"errors"
	"time"
)

var ErrNotHeld = errors.New("lock is no longer held")

// Release gives a lock back. Releasing an expired lock returns ErrNotHeld.
type Release func(ctx context.Context) error

// Locker acquires named locks without waiting.
type Locker interface {
	// TryLock returns acquired=false when another holder owns key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release Release, acquired bool, err error)
}

// Noop always grants the lock. It is the single-instance default.
type Noop struct{}

func (Noop) TryLock(context.Context, string, time.Duration) (Release, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}
