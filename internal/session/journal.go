package session

import (
	"context"
	"time"

	"github.com/recthink/recthink-client/internal/journal"
)

const journalWriteTimeout = 5 * time.Second

type recordFunc func(ctx context.Context, r journal.Recorder) error

// recordLocked queues a transcript write. Writes run in order on a single
// goroutine. When the queue is full the write is dropped so the controller
// lock is never held waiting on disk.
func (c *Controller) recordLocked(fn recordFunc) {
	if c.records == nil || c.closed {
		return
	}
	select {
	case c.records <- fn:
	default:
		c.logger.Warn("Journal queue full, dropping write", "queue_size", cap(c.records))
	}
}

func (c *Controller) runJournal(r journal.Recorder) {
	defer close(c.journalDone)
	for fn := range c.records {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		if err := fn(ctx, r); err != nil {
			c.logger.Warn("Journal write failed", "error", err)
		}
		cancel()
	}
}
