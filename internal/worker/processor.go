// Package worker runs the message ingestion pipeline: the elected
// leader drains the pending queue in small batches, assigns each
// message a globally ordered id, and commits bodies, indexes, queue
// pops and notifications as one optimistic transaction.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openbusio/backplane/internal/backplane"
	"github.com/openbusio/backplane/internal/message"
	"github.com/openbusio/backplane/internal/metrics"
	"github.com/openbusio/backplane/internal/registry"
	"github.com/openbusio/backplane/internal/store"
	"github.com/openbusio/backplane/params"
)

type Processor struct {
	storage *store.RedisStorage
	buses   registry.BusRepository
}

func NewProcessor(storage *store.RedisStorage, buses registry.BusRepository) *Processor {
	return &Processor{
		storage: storage,
		buses:   buses,
	}
}

// Run executes the ingestion loop until ctx is cancelled or the
// optimistic lock is lost. An aborted commit means another process won
// the watched key: this node must not assign more ids, so the loop
// halts instead of retrying. Any other error backs off and retries the
// same batch; unprocessed queue entries are never skipped.
func (p *Processor) Run(ctx context.Context) {
	slog.Info("message processor started")
	defer slog.Info("message processor stopped")
	for {
		err := p.processBatch(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, store.ErrTxAborted):
			metrics.TransactionAborts.Inc()
			slog.Warn("ingestion commit aborted, halting: another writer owns the last-id key")
			return
		case err != nil:
			slog.Warn("message batch processing failed", "error", err)
			if !sleep(ctx, params.ProcessorBackoff) {
				return
			}
		default:
			if !sleep(ctx, params.ProcessorSleep) {
				return
			}
		}
	}
}

type stagedMessage struct {
	msg        *message.Message
	encoded    string
	ttl        time.Duration
	arrivedAt  time.Time
	corrected  bool
	scoreMilli int64
}

// processBatch handles one ingestion iteration inside a transaction
// watching the last-id key.
func (p *Processor) processBatch(ctx context.Context) error {
	return p.storage.Watch(ctx, func(tx *store.Tx) error {
		lastID, err := p.resolveLastID(ctx, tx)
		if err != nil {
			return err
		}

		raw, err := tx.ListRange(ctx, backplane.KeyMessageQueue, 0, params.MessageBatchSize-1)
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			return nil
		}

		var staged []*stagedMessage
		drop := 0
		now := time.Now()
		for _, entry := range raw {
			msg, err := message.Decode(entry)
			if err != nil {
				slog.Warn("dropping undecodable queue entry", "error", err)
				drop++
				continue
			}
			st, newLastID, err := p.stageMessage(ctx, msg, lastID, now)
			if err != nil {
				return err
			}
			lastID = newLastID
			staged = append(staged, st)
		}

		if len(staged) == 0 && drop == 0 {
			return nil
		}

		slog.Info("committing message batch", "count", len(staged))
		err = tx.Commit(ctx, func(ops *store.Ops) {
			for _, st := range staged {
				ops.SetWithExpiry(st.msg.ID, st.encoded, st.ttl)
				ops.ListPush(backplane.ChannelKey(st.msg.Bus, st.msg.Channel), st.msg.ID)
				ops.SortedSetAdd(backplane.BusKey(st.msg.Bus), float64(st.scoreMilli), st.msg.ID)
				ops.SortedSetAdd(backplane.KeyAllMessages, float64(st.scoreMilli),
					backplane.IndexEntry(st.msg.Bus, st.msg.Channel, st.msg.ID))
				ops.Publish(backplane.AlertsTopic, st.msg.ID)
				ops.ListPop(backplane.KeyMessageQueue)
			}
			for i := 0; i < drop; i++ {
				ops.ListPop(backplane.KeyMessageQueue)
			}
			if len(staged) > 0 {
				ops.Set(backplane.KeyLastID, lastID)
			}
		})
		if err != nil {
			return err
		}

		committedAt := time.Now()
		for _, st := range staged {
			metrics.MessagesIngested.Inc()
			if st.corrected {
				metrics.OrderingCorrections.Inc()
			}
			metrics.TimeInQueue.Observe(committedAt.Sub(st.arrivedAt).Seconds())
		}
		return nil
	}, backplane.KeyLastID)
}

// stageMessage assigns the message its final ordered id and prepares
// the writes for the pending transaction. Returns the id that becomes
// the new lastAssignedId for the rest of the batch.
func (p *Processor) stageMessage(ctx context.Context, msg *message.Message, lastID string, now time.Time) (*stagedMessage, string, error) {
	candidate := msg.ID
	if candidate == "" {
		candidate = message.NewID(now)
	}
	arrivedAt, err := message.TimeFromID(candidate)
	if err != nil {
		arrivedAt = now
	}

	finalID, corrected, err := message.EnsureOrder(lastID, candidate)
	if err != nil {
		return nil, "", err
	}
	if corrected {
		// informational, not an error: ordering was corrected
		slog.Info("message id bumped to preserve total order", "from", candidate, "to", finalID)
	}
	msg.ID = finalID

	retention, stickyRetention := p.resolveRetention(ctx, msg.Bus)
	ttl := msg.RetentionTTL(now, retention, stickyRetention)

	encoded, err := msg.Encode()
	if err != nil {
		return nil, "", err
	}

	assignedAt, err := message.TimeFromID(finalID)
	if err != nil {
		return nil, "", err
	}
	return &stagedMessage{
		msg:        msg,
		encoded:    encoded,
		ttl:        ttl,
		arrivedAt:  arrivedAt,
		corrected:  corrected,
		scoreMilli: assignedAt.UnixMilli(),
	}, finalID, nil
}

// resolveRetention looks up the bus retention policy, falling back to
// defaults when the bus is unknown. Store errors fall back too: a
// registry outage must not stall ingestion.
func (p *Processor) resolveRetention(ctx context.Context, bus string) (time.Duration, time.Duration) {
	cfg, err := p.buses.Get(ctx, bus)
	if err != nil {
		if !errors.Is(err, registry.ErrBusNotFound) {
			slog.Warn("bus config lookup failed, using default retention", "bus", bus, "error", err)
		}
		return params.DefaultRetentionSeconds * time.Second, params.DefaultStickyRetentionSeconds * time.Second
	}
	return cfg.Retention(), cfg.StickyRetention()
}

// resolveLastID reads the last globally assigned id: the dedicated key
// first, falling back to the tail of the global index.
//
// Deprecated fallback: remove once every deployment has written the
// last-id key at least once.
func (p *Processor) resolveLastID(ctx context.Context, tx *store.Tx) (string, error) {
	id, err := tx.Get(ctx, backplane.KeyLastID)
	if err == nil && id != "" {
		if _, terr := message.TimeFromID(id); terr == nil {
			return id, nil
		}
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	entry, err := tx.SortedSetLast(ctx, backplane.KeyAllMessages)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	segs := strings.SplitN(entry, " ", 3)
	if len(segs) != 3 {
		return "", nil
	}
	if _, err := message.TimeFromID(segs[2]); err != nil {
		return "", nil
	}
	return segs[2], nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
