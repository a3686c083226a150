// Package poll wakes blocked message polls when new messages commit.
// Waiters block on a notification channel bounded by their own
// deadline; the store's pub/sub topic is only a wake-up optimization,
// never a correctness signal, so a missed notification merely delays a
// poll until its deadline re-check.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openbusio/backplane/internal/metrics"
	"github.com/openbusio/backplane/internal/store"
)

type Hub struct {
	storage *store.RedisStorage
	topic   string

	mu      sync.Mutex
	waiters map[chan struct{}]struct{}
}

func NewHub(storage *store.RedisStorage, topic string) *Hub {
	return &Hub{
		storage: storage,
		topic:   topic,
		waiters: make(map[chan struct{}]struct{}),
	}
}

// Run subscribes to the notification topic and fans every publication
// out to the registered waiters until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	sub := h.storage.Subscribe(ctx, h.topic)
	defer sub.Close()
	slog.Info("poll hub subscribed", "topic", h.topic)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast()
		}
	}
}

func (h *Hub) broadcast() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.waiters {
		close(w)
		delete(h.waiters, w)
	}
}

// Wait blocks until a new message is announced, the wait duration
// elapses, or ctx is cancelled. Returns true if woken by an
// announcement.
func (h *Hub) Wait(ctx context.Context, d time.Duration) bool {
	w := make(chan struct{})
	h.mu.Lock()
	h.waiters[w] = struct{}{}
	h.mu.Unlock()
	metrics.PollWaiters.Inc()
	defer metrics.PollWaiters.Dec()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-w:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	h.mu.Lock()
	delete(h.waiters, w)
	h.mu.Unlock()
	return false
}
