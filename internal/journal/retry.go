package journal

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	maxBusyRetries = 3
	baseBusyDelay  = 100 * time.Millisecond
)

// isConflictError reports SQLITE_BUSY and "database is locked" failures,
// both of which are worth retrying.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs fn, retrying lock conflicts with exponential backoff
// (100ms, 200ms).
func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < maxBusyRetries; i++ {
		err = fn()
		if err == nil || !isConflictError(err) || i == maxBusyRetries-1 {
			return err
		}

		delay := baseBusyDelay * time.Duration(1<<i)
		slog.Debug("journal write hit a lock conflict, retrying", "op", op, "attempt", i+1, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
