package backplane

import (
	"context"
	"errors"
	"time"

	"github.com/openbusio/backplane/internal/store"
	"github.com/openbusio/backplane/params"
)

// Channel binds an opaque client-chosen identifier to a bus. Channels
// are created on first use by an anonymous token request and refreshed
// (expiry extended) while in use; the store's TTL retires them.
type Channel struct {
	ID        string    `json:"id"`
	Bus       string    `json:"bus"`
	ExpiresAt time.Time `json:"expiresAt"`
}

const channelIDLength = 32

type ChannelDAO struct {
	channels store.Store[Channel]
}

func NewChannelDAO(storage store.Storage) *ChannelDAO {
	return &ChannelDAO{
		channels: store.New[Channel](storage, params.ChannelKeyPrefix),
	}
}

// CreateOrRefresh stores a channel bound to the bus under the given id,
// generating a fresh id when none is supplied, and (re)sets its expiry.
func (d *ChannelDAO) CreateOrRefresh(ctx context.Context, existingID, bus string, ttl time.Duration) (Channel, error) {
	id := existingID
	if id == "" {
		id = randomString(channelIDLength)
	}
	ch := Channel{
		ID:        id,
		Bus:       bus,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := d.channels.Set(ctx, id, ch, ttl); err != nil {
		return Channel{}, err
	}
	return ch, nil
}

func (d *ChannelDAO) Get(ctx context.Context, id string) (Channel, error) {
	return d.channels.Get(ctx, id)
}

// ExpiresIn reports the channel's remaining lifetime; a missing channel
// reports zero, not an error, since callers treat it as "no existing
// expiry to preserve".
func (d *ChannelDAO) ExpiresIn(ctx context.Context, id string) (time.Duration, error) {
	if id == "" {
		return 0, nil
	}
	ttl, err := d.channels.TTL(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	return ttl, err
}
