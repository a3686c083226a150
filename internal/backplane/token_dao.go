package backplane

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openbusio/backplane/internal/scope"
	"github.com/openbusio/backplane/internal/store"
	"github.com/openbusio/backplane/params"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Token is a bearer credential carrying an effective scope. The id
// prefix encodes privilege and type so request validation can reject a
// wrong-type token before any store lookup.
type Token struct {
	ID        string    `json:"id"`
	Type      TokenType `json:"type"`
	Anonymous bool      `json:"anonymous"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expiresAt"`
	ClientID  string    `json:"issuedToClientId,omitempty"`
	GrantIDs  []string  `json:"grants,omitempty"`
}

func tokenIDPrefix(typ TokenType, anonymous bool) string {
	switch {
	case anonymous && typ == TokenTypeAccess:
		return "an"
	case anonymous && typ == TokenTypeRefresh:
		return "ar"
	case typ == TokenTypeRefresh:
		return "pr"
	default:
		return "pa"
	}
}

// NewToken builds an unsaved token with a fresh identifier.
func NewToken(typ TokenType, anonymous bool, sc scope.Scope, expiresAt time.Time) *Token {
	return &Token{
		ID:        tokenIDPrefix(typ, anonymous) + ":" + randomString(params.TokenSecretLength),
		Type:      typ,
		Anonymous: anonymous,
		Scope:     sc.String(),
		ExpiresAt: expiresAt,
	}
}

func (t *Token) IsRefresh() bool {
	return t.Type == TokenTypeRefresh
}

func (t *Token) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// EffectiveScope parses the token's stored scope string.
func (t *Token) EffectiveScope() (scope.Scope, error) {
	return scope.Parse(t.Scope)
}

// TokenDAO persists tokens with a store TTL matching their expiry and
// maintains the grant↔token relation used for cascading revocation,
// plus the per-channel refresh token index for anonymous flows.
type TokenDAO struct {
	storage *store.RedisStorage
	tokens  store.Store[Token]
}

func NewTokenDAO(storage *store.RedisStorage) *TokenDAO {
	return &TokenDAO{
		storage: storage,
		tokens:  store.New[Token](storage, params.TokenKeyPrefix),
	}
}

// Persist stores the token and rebuilds its secondary indexes. For an
// anonymous refresh token scoped to a single channel, the channel index
// is overwritten: presenting a refresh token for a channel replaces
// rather than accumulates.
func (d *TokenDAO) Persist(ctx context.Context, t *Token) error {
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		return errors.New("token already expired")
	}
	if err := d.tokens.Set(ctx, t.ID, *t, ttl); err != nil {
		return err
	}
	for _, grantID := range t.GrantIDs {
		if err := d.storage.SetAdd(ctx, grantTokenRelKey(grantID), t.ID); err != nil {
			slog.Warn("failed to index token under grant", "token", t.ID, "grant", grantID, "error", err)
		}
	}
	if t.Anonymous && t.IsRefresh() {
		if channel := d.tokenChannel(t); channel != "" {
			if err := d.storage.SetString(ctx, channelTokenKey(channel), t.ID, ttl); err != nil {
				slog.Warn("failed to index refresh token by channel", "token", t.ID, "error", err)
			}
		}
	}
	return nil
}

func (d *TokenDAO) tokenChannel(t *Token) string {
	sc, err := t.EffectiveScope()
	if err != nil {
		return ""
	}
	channels := sc.FieldValues(scope.FieldChannel)
	if len(channels) != 1 {
		return ""
	}
	return channels[0]
}

// Get returns the token, or store.ErrNotFound once it has expired.
func (d *TokenDAO) Get(ctx context.Context, id string) (*Token, error) {
	t, err := d.tokens.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsExpired(time.Now()) {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

// ByChannel returns the single outstanding refresh token for a channel.
func (d *TokenDAO) ByChannel(ctx context.Context, channel string) (*Token, error) {
	id, err := d.storage.GetString(ctx, channelTokenKey(channel))
	if err != nil {
		return nil, err
	}
	return d.Get(ctx, id)
}

// Delete removes the token and, best effort, its secondary indexes. A
// failure to clean a relation entry is logged but never blocks the
// primary deletion; the cleanup sweep corrects leftover entries.
func (d *TokenDAO) Delete(ctx context.Context, id string) error {
	t, err := d.tokens.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := d.tokens.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	for _, grantID := range t.GrantIDs {
		if err := d.storage.SetRemove(ctx, grantTokenRelKey(grantID), id); err != nil {
			slog.Warn("failed to remove grant/token relation", "token", id, "grant", grantID, "error", err)
		}
	}
	if t.Anonymous && t.IsRefresh() {
		if channel := d.tokenChannel(&t); channel != "" {
			if err := d.storage.Delete(ctx, channelTokenKey(channel)); err != nil && !errors.Is(err, store.ErrNotFound) {
				slog.Warn("failed to remove channel token index", "token", id, "error", err)
			}
		}
	}
	return nil
}

// RevokeByGrant deletes every token issued from the grant. A token must
// never outlive a scope change to the grant that authorized it.
func (d *TokenDAO) RevokeByGrant(ctx context.Context, grantID string) error {
	ids, err := d.storage.SetMembers(ctx, grantTokenRelKey(grantID))
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := d.Delete(ctx, id); err != nil {
			return err
		}
		slog.Info("revoked token", "token", id, "grant", grantID)
	}
	if err := d.storage.Delete(ctx, grantTokenRelKey(grantID)); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("failed to drop grant/token relation set", "grant", grantID, "error", err)
	}
	return nil
}

// TokensByGrant lists outstanding tokens issued from the grant.
func (d *TokenDAO) TokensByGrant(ctx context.Context, grantID string) ([]*Token, error) {
	ids, err := d.storage.SetMembers(ctx, grantTokenRelKey(grantID))
	if err != nil {
		return nil, err
	}
	var out []*Token
	for _, id := range ids {
		t, err := d.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
