package api

import (
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/openbusio/backplane/internal/backplane"
	"github.com/openbusio/backplane/internal/message"
	"github.com/openbusio/backplane/internal/oauth2"
	"github.com/openbusio/backplane/internal/poll"
	"github.com/openbusio/backplane/internal/scope"
	"github.com/openbusio/backplane/internal/store"
	"github.com/openbusio/backplane/params"
)

type MessagesHandler struct {
	tokenService *oauth2.TokenService
	messages     *backplane.MessageDAO
	channels     *backplane.ChannelDAO
	hub          *poll.Hub
	baseURL      string
	debug        bool
}

func NewMessagesHandler(
	tokenService *oauth2.TokenService,
	messages *backplane.MessageDAO,
	channels *backplane.ChannelDAO,
	hub *poll.Hub,
	baseURL string,
	debug bool) *MessagesHandler {
	return &MessagesHandler{
		tokenService: tokenService,
		messages:     messages,
		channels:     channels,
		hub:          hub,
		baseURL:      baseURL,
		debug:        debug,
	}
}

// GetMessages returns the messages visible under the token's scope with
// id greater than since. With block set, an empty result waits for new
// commits up to the requested number of seconds, bounded by the server
// maximum.
func (h *MessagesHandler) GetMessages(ctx *fiber.Ctx) error {
	token, err := h.tokenService.Authenticate(ctx.Context(), bearerToken(ctx))
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}
	if token.IsRefresh() {
		return renderOAuthError(ctx,
			oauth2.NewError(oauth2.CodeInvalidRequest, "refresh token cannot be used to retrieve messages"), h.debug)
	}
	tokenScope, err := token.EffectiveScope()
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}

	since := ctx.Query("since")
	block := min(time.Duration(ctx.QueryInt("block"))*time.Second, params.MaxPollBlock)
	deadline := time.Now().Add(block)

	var msgs []*message.Message
	for {
		msgs, err = h.messages.RetrieveByScope(ctx.Context(), tokenScope, since, params.MaxPollMessages)
		if err != nil {
			return renderOAuthError(ctx, err, h.debug)
		}
		remaining := time.Until(deadline)
		if len(msgs) > 0 || remaining <= 0 {
			break
		}
		if !h.hub.Wait(ctx.Context(), remaining) {
			break
		}
	}

	nextSince := since
	frames := make([]messageFrame, 0, len(msgs))
	for _, m := range msgs {
		frames = append(frames, newMessageFrame(h.baseURL, m))
		nextSince = m.ID
	}
	return ctx.JSON(messagesResponse{
		NextURL:  h.baseURL + "/v2/messages?since=" + url.QueryEscape(nextSince),
		Messages: frames,
	})
}

// GetMessage returns a single committed message. Messages outside the
// token's scope are indistinguishable from missing ones.
func (h *MessagesHandler) GetMessage(ctx *fiber.Ctx) error {
	token, err := h.tokenService.Authenticate(ctx.Context(), bearerToken(ctx))
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}
	if token.IsRefresh() {
		return renderOAuthError(ctx,
			oauth2.NewError(oauth2.CodeInvalidRequest, "refresh token cannot be used to retrieve messages"), h.debug)
	}
	tokenScope, err := token.EffectiveScope()
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}

	id, err := url.PathUnescape(ctx.Params("id"))
	if err != nil {
		return ctx.SendStatus(fiber.StatusNotFound)
	}
	msg, err := h.messages.Get(ctx.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return ctx.SendStatus(fiber.StatusNotFound)
	}
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}
	if !tokenScope.IsMessageInScope(msg) {
		return ctx.SendStatus(fiber.StatusNotFound)
	}
	frame := newMessageFrame(h.baseURL, msg)
	return ctx.JSON(frame)
}

type postMessageRequest struct {
	Message struct {
		Source  string `json:"source"`
		Type    string `json:"type"`
		Sticky  bool   `json:"sticky"`
		Expire  string `json:"expire"`
		Payload any    `json:"payload"`
	} `json:"message"`
}

// PostMessage enqueues a message on a channel. Requires a privileged,
// non-refresh token whose scope covers the target bus; the channel must
// exist and be bound to that bus.
func (h *MessagesHandler) PostMessage(ctx *fiber.Ctx) error {
	token, err := h.tokenService.Authenticate(ctx.Context(), bearerToken(ctx))
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}
	if token.Anonymous || token.IsRefresh() {
		return renderOAuthError(ctx,
			oauth2.NewError(oauth2.CodeUnauthorizedClient, "a privileged access token is required to post messages"), h.debug)
	}
	tokenScope, err := token.EffectiveScope()
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}

	bus := ctx.Params("bus")
	channelID := ctx.Params("channel")
	if !scopeHasBus(tokenScope, bus) {
		return renderOAuthError(ctx,
			oauth2.NewError(oauth2.CodeUnauthorizedClient, "token scope does not cover bus: %s", bus), h.debug)
	}
	channel, err := h.channels.Get(ctx.Context(), channelID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && channel.Bus != bus) {
		return renderOAuthError(ctx,
			oauth2.NewError(oauth2.CodeInvalidRequest, "channel %s is not bound to bus %s", channelID, bus), h.debug)
	}
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}

	var req postMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return renderOAuthError(ctx,
			oauth2.NewError(oauth2.CodeInvalidRequest, "malformed message body"), h.debug)
	}
	msg, err := buildMessage(bus, channelID, &req)
	if err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}
	if err := h.messages.Enqueue(ctx.Context(), msg); err != nil {
		return renderOAuthError(ctx, err, h.debug)
	}
	return ctx.SendStatus(fiber.StatusCreated)
}

func buildMessage(bus, channel string, req *postMessageRequest) (*message.Message, error) {
	if req.Message.Payload == nil {
		return nil, oauth2.NewError(oauth2.CodeInvalidRequest, "message payload is required")
	}
	payload, err := json.Marshal(req.Message.Payload)
	if err != nil {
		return nil, oauth2.NewError(oauth2.CodeInvalidRequest, "unserializable message payload")
	}
	if req.Message.Expire != "" {
		if _, err := time.Parse(time.RFC3339, req.Message.Expire); err != nil {
			return nil, oauth2.NewError(oauth2.CodeInvalidRequest, "invalid expire timestamp: %s", req.Message.Expire)
		}
	}
	return &message.Message{
		Bus:     bus,
		Channel: channel,
		Source:  req.Message.Source,
		Type:    req.Message.Type,
		Sticky:  req.Message.Sticky,
		Expire:  req.Message.Expire,
		Payload: payload,
	}, nil
}

func scopeHasBus(sc scope.Scope, bus string) bool {
	for _, b := range sc.FieldValues(scope.FieldBus) {
		if b == bus {
			return true
		}
	}
	return false
}
