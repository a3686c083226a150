package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/openbusio/backplane/internal/oauth2"
)

type TokenHandler struct {
	tokenService *oauth2.TokenService
	debug        bool
}

func NewTokenHandler(tokenService *oauth2.TokenService, debug bool) *TokenHandler {
	return &TokenHandler{
		tokenService: tokenService,
		debug:        debug,
	}
}

// PostToken serves both token flows on one endpoint. A request carrying
// client credentials is a privileged request; one without is anonymous.
func (h *TokenHandler) PostToken(ctx *fiber.Ctx) error {
	clientID, clientSecret := parseBasicAuth(ctx)
	if clientID != "" || clientSecret != "" {
		resp, err := h.tokenService.PrivilegedToken(
			ctx.Context(),
			clientID,
			clientSecret,
			ctx.FormValue("grant_type"),
			ctx.FormValue("code"),
			ctx.FormValue("refresh_token"),
			ctx.FormValue("scope"),
		)
		if err != nil {
			return renderOAuthError(ctx, err, h.debug)
		}
		return ctx.JSON(resp)
	}

	resp, err := h.tokenService.AnonymousToken(
		ctx.Context(),
		ctx.FormValue("callback"),
		ctx.FormValue("bus"),
		ctx.FormValue("refresh_token"),
		ctx.FormValue("scope"),
	)
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}
	return ctx.JSON(resp)
}
