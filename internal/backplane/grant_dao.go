package backplane

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openbusio/backplane/internal/scope"
	"github.com/openbusio/backplane/internal/store"
	"github.com/openbusio/backplane/params"
)

type GrantState string

const (
	GrantStateInactive GrantState = "inactive"
	GrantStateActive   GrantState = "active"
)

// Grant is the durable authorization record backing issued tokens: a
// resource owner authorized a client for a set of buses. A grant's
// scope may only shrink over time; shrinking to no authorization-
// required fields deletes the grant.
type Grant struct {
	ID       string     `json:"id"`
	Owner    string     `json:"owner"`
	ClientID string     `json:"clientId"`
	Scope    string     `json:"scope"`
	State    GrantState `json:"state"`
	IssuedAt time.Time  `json:"issuedAt"`
}

func NewGrant(owner, clientID string, sc scope.Scope) *Grant {
	return &Grant{
		ID:       uuid.NewString(),
		Owner:    owner,
		ClientID: clientID,
		Scope:    sc.String(),
		State:    GrantStateActive,
		IssuedAt: time.Now(),
	}
}

func (g *Grant) AuthorizedScope() (scope.Scope, error) {
	return scope.Parse(g.Scope)
}

// GrantDAO keeps grants in the store under a per-grant key plus an id
// index set. Revocation cascades through the TokenDAO.
type GrantDAO struct {
	storage *store.RedisStorage
	grants  store.Store[Grant]
	tokens  *TokenDAO
}

func NewGrantDAO(storage *store.RedisStorage, tokens *TokenDAO) *GrantDAO {
	return &GrantDAO{
		storage: storage,
		grants:  store.New[Grant](storage, params.GrantKeyPrefix),
		tokens:  tokens,
	}
}

func (d *GrantDAO) Persist(ctx context.Context, g *Grant) error {
	if err := d.grants.Save(ctx, g.ID, *g); err != nil {
		return err
	}
	return d.storage.SetAdd(ctx, grantIndexKey, g.ID)
}

func (d *GrantDAO) Get(ctx context.Context, id string) (*Grant, error) {
	g, err := d.grants.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (d *GrantDAO) GetAll(ctx context.Context) ([]*Grant, error) {
	ids, err := d.storage.SetMembers(ctx, grantIndexKey)
	if err != nil {
		return nil, err
	}
	var out []*Grant
	for _, id := range ids {
		g, err := d.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// ByClientID returns the client's active grants.
func (d *GrantDAO) ByClientID(ctx context.Context, clientID string) ([]*Grant, error) {
	all, err := d.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Grant
	for _, g := range all {
		if g.ClientID == clientID && g.State == GrantStateActive {
			out = append(out, g)
		}
	}
	return out, nil
}

// Activate transitions an inactive grant to active.
func (d *GrantDAO) Activate(ctx context.Context, id string) error {
	g, err := d.Get(ctx, id)
	if err != nil {
		return err
	}
	g.State = GrantStateActive
	return d.grants.Save(ctx, g.ID, *g)
}

// Delete revokes every token issued from the grant, then removes the
// grant itself. Index cleanup is best effort: a stale index entry never
// blocks the primary deletion.
func (d *GrantDAO) Delete(ctx context.Context, id string) error {
	if err := d.tokens.RevokeByGrant(ctx, id); err != nil {
		slog.Warn("failed to revoke tokens for grant", "grant", id, "error", err)
	}
	if err := d.grants.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := d.storage.SetRemove(ctx, grantIndexKey, id); err != nil {
		slog.Warn("failed to remove grant from index", "grant", id, "error", err)
	}
	return nil
}

// update replaces the grant's scope, revoking all outstanding tokens
// first so no token outlives a scope change to its backing grant.
func (d *GrantDAO) update(ctx context.Context, g *Grant) error {
	if err := d.tokens.RevokeByGrant(ctx, g.ID); err != nil {
		return err
	}
	if err := d.grants.Save(ctx, g.ID, *g); err != nil {
		return err
	}
	slog.Info("updated grant and revoked its tokens", "grant", g.ID, "scope", g.Scope)
	return nil
}

// RevokeBuses removes the named buses from every matching grant of the
// given set. A grant whose scope loses all authorization-required
// values is deleted outright, cascading to its tokens. Reports whether
// any grant changed.
func (d *GrantDAO) RevokeBuses(ctx context.Context, grants []*Grant, buses []string) (bool, error) {
	toRevoke, err := scope.Parse(scope.EncodeValues(scope.FieldBus, buses))
	if err != nil {
		return false, err
	}
	changed := false
	for _, g := range grants {
		didChange, err := d.revokeBuses(ctx, g, toRevoke)
		if err != nil {
			return changed, err
		}
		changed = changed || didChange
	}
	return changed, nil
}

// DeleteByBuses strips the given buses from every grant referencing
// them; used when a bus is deprovisioned.
func (d *GrantDAO) DeleteByBuses(ctx context.Context, buses []string) error {
	all, err := d.GetAll(ctx)
	if err != nil {
		return err
	}
	_, err = d.RevokeBuses(ctx, all, buses)
	return err
}

func (d *GrantDAO) revokeBuses(ctx context.Context, g *Grant, toRevoke scope.Scope) (bool, error) {
	grantScope, err := g.AuthorizedScope()
	if err != nil {
		return false, err
	}
	updated := scope.Revoke(grantScope, toRevoke)
	if updated.Equal(grantScope) {
		return false, nil
	}
	if !updated.IsAuthorizationRequired() {
		slog.Info("revoked all buses from grant", "grant", g.ID)
		return true, d.Delete(ctx, g.ID)
	}
	g.Scope = updated.String()
	return true, d.update(ctx, g)
}
