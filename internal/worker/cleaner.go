package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/openbusio/backplane/internal/backplane"
)

// Cleaner periodically prunes index entries whose message bodies have
// expired. It runs on every node; the sweep is idempotent and needs no
// leadership.
type Cleaner struct {
	messages *backplane.MessageDAO
	interval time.Duration
}

func NewCleaner(messages *backplane.MessageDAO, interval time.Duration) *Cleaner {
	return &Cleaner{
		messages: messages,
		interval: interval,
	}
}

func (c *Cleaner) Run(ctx context.Context) {
	slog.Info("message cleanup task started", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.messages.DeleteExpired(ctx); err != nil {
				slog.Warn("message cleanup sweep failed", "error", err)
			}
		}
	}
}
