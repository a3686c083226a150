package oauth2

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openbusio/backplane/internal/audit"
	"github.com/openbusio/backplane/internal/backplane"
	"github.com/openbusio/backplane/internal/registry"
	"github.com/openbusio/backplane/internal/scope"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrOwnerAuth      = errors.New("invalid bus owner credentials")
	ErrNotBusOwner    = errors.New("bus is not owned by the authenticated owner")
	ErrNothingRevoked = errors.New("no grant was modified")
)

// GrantService implements the authorization side of the token flows:
// bus owners approve clients for buses, producing grants and the
// authorization codes that redeem them.
type GrantService struct {
	grants  *backplane.GrantDAO
	tokens  *TokenService
	buses   registry.BusRepository
	clients registry.ClientRepository
	owners  registry.OwnerRepository
}

func NewGrantService(
	grants *backplane.GrantDAO,
	tokens *TokenService,
	buses registry.BusRepository,
	clients registry.ClientRepository,
	owners registry.OwnerRepository) *GrantService {
	return &GrantService{
		grants:  grants,
		tokens:  tokens,
		buses:   buses,
		clients: clients,
		owners:  owners,
	}
}

// AuthenticateOwner checks a bus owner's credentials.
func (s *GrantService) AuthenticateOwner(ctx context.Context, username, password string) error {
	owner, err := s.owners.GetByUsername(ctx, username)
	if errors.Is(err, registry.ErrOwnerNotFound) {
		return ErrOwnerAuth
	}
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(owner.PasswordHash), []byte(password)); err != nil {
		return ErrOwnerAuth
	}
	return nil
}

// Authorize records the owner's approval of a client for a set of
// buses: each bus must exist and belong to the owner. Returns the new
// active grant and an authorization code redeemable by that client.
func (s *GrantService) Authorize(ctx context.Context, owner, clientID string, buses []string) (*backplane.Grant, string, error) {
	if len(buses) == 0 {
		return nil, "", NewError(CodeInvalidRequest, "at least one bus is required")
	}
	client, err := s.clients.GetByClientID(ctx, clientID)
	if errors.Is(err, registry.ErrClientNotFound) {
		return nil, "", NewError(CodeInvalidRequest, "unknown client: %s", clientID)
	}
	if err != nil {
		return nil, "", err
	}
	for _, bus := range buses {
		cfg, err := s.buses.Get(ctx, bus)
		if errors.Is(err, registry.ErrBusNotFound) {
			return nil, "", NewError(CodeInvalidRequest, "invalid bus: %s", bus)
		}
		if err != nil {
			return nil, "", err
		}
		if cfg.Owner != owner {
			return nil, "", ErrNotBusOwner
		}
	}

	grantScope, err := scope.Parse(scope.EncodeValues(scope.FieldBus, buses))
	if err != nil {
		return nil, "", err
	}
	grant := backplane.NewGrant(owner, client.ClientID, grantScope)
	if err := s.grants.Persist(ctx, grant); err != nil {
		return nil, "", err
	}
	code, err := s.tokens.NewAuthorizationCode(grant.ID, client.ClientID)
	if err != nil {
		return nil, "", err
	}
	slog.Info("issued grant", "grant", grant.ID, "owner", owner, "client", client.ClientID, "scope", grant.Scope)
	audit.RecordGrantIssued(ctx, audit.GrantRecord{
		Owner:    owner,
		ClientID: client.ClientID,
		GrantID:  grant.ID,
		Buses:    buses,
	})
	return grant, code, nil
}

// RevokeClientBuses removes the named buses from every grant the owner
// issued to the client. Outstanding tokens backed by a changed grant
// are revoked as part of the update.
func (s *GrantService) RevokeClientBuses(ctx context.Context, owner, clientID string, buses []string) error {
	all, err := s.grants.GetAll(ctx)
	if err != nil {
		return err
	}
	var matched []*backplane.Grant
	for _, g := range all {
		if g.ClientID == clientID && g.Owner == owner {
			matched = append(matched, g)
		}
	}
	changed, err := s.grants.RevokeBuses(ctx, matched, buses)
	if err != nil {
		return err
	}
	if !changed {
		return ErrNothingRevoked
	}
	audit.RecordGrantRevoked(ctx, audit.GrantRecord{
		Owner:    owner,
		ClientID: clientID,
		Buses:    buses,
	})
	return nil
}

// DeprovisionBus deletes the bus record and strips it from every grant
// referencing it, cascading to issued tokens.
func (s *GrantService) DeprovisionBus(ctx context.Context, owner, name string) error {
	cfg, err := s.buses.Get(ctx, name)
	if err != nil {
		return err
	}
	if cfg.Owner != owner {
		return ErrNotBusOwner
	}
	if err := s.grants.DeleteByBuses(ctx, []string{name}); err != nil {
		return err
	}
	if err := s.buses.Delete(ctx, name); err != nil {
		return err
	}
	audit.RecordBusDeprovisioned(ctx, audit.BusRecord{Actor: owner, Bus: name})
	return nil
}
