package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/openbusio/backplane/internal/oauth2"
)

// GrantHandler exposes grant management to bus owners, authenticated
// with basic credentials against the owner registry.
type GrantHandler struct {
	grantService *oauth2.GrantService
	debug        bool
}

func NewGrantHandler(grantService *oauth2.GrantService, debug bool) *GrantHandler {
	return &GrantHandler{
		grantService: grantService,
		debug:        debug,
	}
}

type grantRequest struct {
	ClientID string   `json:"client_id"`
	Buses    []string `json:"buses"`
}

type grantResponse struct {
	GrantID string `json:"grant_id"`
	Code    string `json:"code"`
	Scope   string `json:"scope"`
}

func (h *GrantHandler) authenticateOwner(ctx *fiber.Ctx) (string, error) {
	username, password := parseBasicAuth(ctx)
	if username == "" {
		return "", oauth2.NewError(oauth2.CodeInvalidClient, "bus owner authentication required")
	}
	if err := h.grantService.AuthenticateOwner(ctx.Context(), username, password); err != nil {
		if errors.Is(err, oauth2.ErrOwnerAuth) {
			return "", oauth2.NewError(oauth2.CodeInvalidClient, "invalid bus owner credentials")
		}
		return "", err
	}
	return username, nil
}

// PostGrant records the authenticated owner's approval of a client for
// a set of buses and returns the authorization code the client redeems
// on the token endpoint.
func (h *GrantHandler) PostGrant(ctx *fiber.Ctx) error {
	owner, err := h.authenticateOwner(ctx)
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}
	var req grantRequest
	if err := ctx.BodyParser(&req); err != nil {
		return renderOAuthError(ctx,
			oauth2.NewError(oauth2.CodeInvalidRequest, "malformed grant request"), h.debug)
	}
	grant, code, err := h.grantService.Authorize(ctx.Context(), owner, req.ClientID, req.Buses)
	if errors.Is(err, oauth2.ErrNotBusOwner) {
		return renderOAuthError(ctx,
			oauth2.NewError(oauth2.CodeUnauthorizedClient, "%v", err), h.debug)
	}
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}
	return ctx.Status(fiber.StatusCreated).JSON(grantResponse{
		GrantID: grant.ID,
		Code:    code,
		Scope:   grant.Scope,
	})
}

// DeleteGrantBuses strips buses from the owner's grants to a client,
// revoking every token those grants back.
func (h *GrantHandler) DeleteGrantBuses(ctx *fiber.Ctx) error {
	owner, err := h.authenticateOwner(ctx)
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}
	clientID := ctx.Query("client_id")
	buses := splitCommaList(ctx.Query("buses"))
	if clientID == "" || len(buses) == 0 {
		return renderOAuthError(ctx,
			oauth2.NewError(oauth2.CodeInvalidRequest, "client_id and buses are required"), h.debug)
	}
	err = h.grantService.RevokeClientBuses(ctx.Context(), owner, clientID, buses)
	if errors.Is(err, oauth2.ErrNothingRevoked) {
		return renderOAuthError(ctx,
			oauth2.NewError(oauth2.CodeInvalidRequest, "no grant covers the given buses"), h.debug)
	}
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
