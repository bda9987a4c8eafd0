package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/autorules/pkg/lock"
)

// NewLocker returns a Redis locker when redisURL is set and the no-op locker otherwise.
// The returned close function is always safe to call.
func NewLocker(ctx context.Context, redisURL string, logger *slog.Logger) (lock.Locker, func() error, error) {
	if redisURL == "" {
		return lock.Noop{}, func() error { return nil }, nil
	}

	locker, err := lock.NewRedisFromURL(ctx, redisURL, logger)
	if err != nil {
		return nil, nil, err
	}

	return locker, locker.Close, nil
}
