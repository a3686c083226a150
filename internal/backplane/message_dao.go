package backplane

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/openbusio/backplane/internal/message"
	"github.com/openbusio/backplane/internal/scope"
	"github.com/openbusio/backplane/internal/store"
)

// MessageDAO is the read/enqueue surface over the ordered message
// store. Producers append raw messages to the pending queue; only the
// elected ingestion worker moves them into the committed indexes.
type MessageDAO struct {
	storage *store.RedisStorage
}

func NewMessageDAO(storage *store.RedisStorage) *MessageDAO {
	return &MessageDAO{storage: storage}
}

// Enqueue appends a raw message to the pending queue. A single atomic
// append; producers need no further coordination.
func (d *MessageDAO) Enqueue(ctx context.Context, msg *message.Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}
	return d.storage.ListPush(ctx, KeyMessageQueue, raw)
}

// Get fetches a committed message body by id.
func (d *MessageDAO) Get(ctx context.Context, id string) (*message.Message, error) {
	raw, err := d.storage.GetString(ctx, id)
	if err != nil {
		return nil, err
	}
	return message.Decode(raw)
}

// QueueLength reports the number of raw messages awaiting ingestion.
func (d *MessageDAO) QueueLength(ctx context.Context) (int64, error) {
	return d.storage.ListLen(ctx, KeyMessageQueue)
}

// RetrieveByScope returns committed messages visible under the scope,
// with id strictly greater than since, ordered by id, at most limit.
// Bodies already expired out of the store are skipped; their index
// entries are pruned by the periodic cleanup sweep, not here.
func (d *MessageDAO) RetrieveByScope(ctx context.Context, sc scope.Scope, since string, limit int) ([]*message.Message, error) {
	ids, err := d.candidateIDs(ctx, sc)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	var out []*message.Message
	for _, id := range ids {
		if since != "" && id <= since {
			continue
		}
		msg, err := d.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue // body expired, index entry not yet pruned
		}
		if err != nil {
			return nil, err
		}
		if !sc.IsMessageInScope(msg) {
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// candidateIDs collects message ids from the bus indexes named by the
// scope, or from the global index when the scope names no bus.
func (d *MessageDAO) candidateIDs(ctx context.Context, sc scope.Scope) ([]string, error) {
	buses := sc.FieldValues(scope.FieldBus)
	if len(buses) == 0 {
		entries, err := d.storage.SortedSetRangeAll(ctx, KeyAllMessages)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(entries))
		for _, entry := range entries {
			if segs := strings.SplitN(entry, " ", 3); len(segs) == 3 {
				ids = append(ids, segs[2])
			}
		}
		return ids, nil
	}
	var ids []string
	for _, bus := range buses {
		busIDs, err := d.storage.SortedSetRangeAll(ctx, BusKey(bus))
		if err != nil {
			return nil, err
		}
		ids = append(ids, busIDs...)
	}
	return ids, nil
}

// ChannelMessageIDs returns the committed ids of a channel's ordered
// list, oldest first.
func (d *MessageDAO) ChannelMessageIDs(ctx context.Context, bus, channel string) ([]string, error) {
	return d.storage.ListRange(ctx, ChannelKey(bus, channel), 0, -1)
}

// DeleteExpired prunes index entries whose message bodies have expired
// out of the store. TTL expiry deletes bodies but not index entries, so
// references are removed lazily here.
func (d *MessageDAO) DeleteExpired(ctx context.Context) error {
	entries, err := d.storage.SortedSetRangeAll(ctx, KeyAllMessages)
	if err != nil {
		return err
	}
	pruned := 0
	for _, entry := range entries {
		segs := strings.SplitN(entry, " ", 3)
		if len(segs) != 3 {
			// unparsable index entry, drop it outright
			if err := d.storage.SortedSetRemove(ctx, KeyAllMessages, entry); err != nil {
				return err
			}
			continue
		}
		bus, channel, id := segs[0], segs[1], segs[2]
		_, err := d.storage.GetString(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := d.storage.SortedSetRemove(ctx, BusKey(bus), id); err != nil {
			return err
		}
		if err := d.storage.ListRemove(ctx, ChannelKey(bus, channel), id); err != nil {
			return err
		}
		if err := d.storage.SortedSetRemove(ctx, KeyAllMessages, entry); err != nil {
			return err
		}
		pruned++
	}
	if pruned > 0 {
		slog.Info("pruned stale message index entries", "count", pruned)
	}
	return nil
}
