// Package api implements the HTTP surface: the token endpoint, message
// retrieval with bounded long-polling, and message publication.
package api

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/openbusio/backplane/internal/message"
	"github.com/openbusio/backplane/internal/oauth2"
)

type messageFrame struct {
	MessageURL string `json:"messageURL"`
	Source     string `json:"source,omitempty"`
	Type       string `json:"type,omitempty"`
	Bus        string `json:"bus"`
	Channel    string `json:"channel"`
	Sticky     bool   `json:"sticky"`
	Payload    any    `json:"payload"`
}

type messagesResponse struct {
	NextURL  string         `json:"nextURL"`
	Messages []messageFrame `json:"messages"`
}

type oauthErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func newMessageFrame(baseURL string, m *message.Message) messageFrame {
	return messageFrame{
		MessageURL: baseURL + "/v2/message/" + url.PathEscape(m.ID),
		Source:     m.Source,
		Type:       m.Type,
		Bus:        m.Bus,
		Channel:    m.Channel,
		Sticky:     m.Sticky,
		Payload:    m.Payload,
	}
}

// renderOAuthError writes an OAuth2 error response. The description is
// included only in debug mode; production responses carry the code
// alone so internal detail never leaks.
func renderOAuthError(ctx *fiber.Ctx, err error, debug bool) error {
	var oerr *oauth2.Error
	if !errors.As(err, &oerr) {
		slog.Error("request failed", "path", ctx.Path(), "error", err)
		oerr = &oauth2.Error{Code: oauth2.CodeServerError}
	}
	status := fiber.StatusBadRequest
	switch oerr.Code {
	case oauth2.CodeInvalidClient, oauth2.CodeUnauthorizedClient:
		status = fiber.StatusUnauthorized
	case oauth2.CodeServerError:
		status = fiber.StatusInternalServerError
	}
	resp := oauthErrorResponse{Error: oerr.Code}
	if debug {
		resp.Description = oerr.Description
	}
	return ctx.Status(status).JSON(resp)
}

// parseBasicAuth extracts client credentials from an Authorization
// header, falling back to client_id/client_secret form fields.
func parseBasicAuth(ctx *fiber.Ctx) (clientID, clientSecret string) {
	header := ctx.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(header, "Basic ") {
		if decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic ")); err == nil {
			if id, secret, ok := strings.Cut(string(decoded), ":"); ok {
				return id, secret
			}
		}
	}
	return ctx.FormValue("client_id"), ctx.FormValue("client_secret")
}

// bearerToken extracts the access token from the Authorization header
// or the access_token query parameter.
func bearerToken(ctx *fiber.Ctx) string {
	header := ctx.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ctx.Query("access_token")
}
