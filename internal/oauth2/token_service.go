// Package oauth2 implements the token issuance flows over the grant,
// token and channel records: anonymous token requests scoped to a
// single bus/channel pair, and privileged requests backed by grants.
package oauth2

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/openbusio/backplane/internal/backplane"
	"github.com/openbusio/backplane/internal/registry"
	"github.com/openbusio/backplane/internal/scope"
	"github.com/openbusio/backplane/internal/store"
	"github.com/openbusio/backplane/model"
	"github.com/openbusio/backplane/params"
)

var callbackPattern = regexp.MustCompile(`^[._a-zA-Z0-9]+$`)

type TokenService struct {
	masterKey string
	channels  *backplane.ChannelDAO
	tokens    *backplane.TokenDAO
	grants    *backplane.GrantDAO
	buses     registry.BusRepository
	clients   registry.ClientRepository
}

func NewTokenService(
	masterKey string,
	channels *backplane.ChannelDAO,
	tokens *backplane.TokenDAO,
	grants *backplane.GrantDAO,
	buses registry.BusRepository,
	clients registry.ClientRepository) *TokenService {
	return &TokenService{
		masterKey: masterKey,
		channels:  channels,
		tokens:    tokens,
		grants:    grants,
		buses:     buses,
		clients:   clients,
	}
}

// TokenResponse is the wire shape of a successful token request.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// AnonymousToken serves an anonymous token request: bind (or refresh) a
// channel on the bus and issue an access/refresh token pair whose scope
// is the caller's filters plus the bus and channel.
func (s *TokenService) AnonymousToken(ctx context.Context, callback, bus, refreshTokenID, scopeStr string) (*TokenResponse, error) {
	if callback == "" {
		return nil, NewError(CodeInvalidRequest, "callback cannot be blank")
	}
	if !callbackPattern.MatchString(callback) {
		return nil, NewError(CodeInvalidRequest, "callback parameter value is malformed")
	}

	requestScope, err := scope.Parse(scopeStr)
	if err != nil {
		return nil, NewError(CodeInvalidScope, "%v", err)
	}
	if requestScope.IsAuthorizationRequired() || len(requestScope.FieldValues(scope.FieldChannel)) > 0 {
		return nil, NewError(CodeInvalidScope, "buses and channels not allowed in the scope of anonymous token requests")
	}

	var presented *backplane.Token
	if refreshTokenID != "" {
		presented, err = s.tokens.Get(ctx, refreshTokenID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewError(CodeInvalidGrant, "invalid refresh token")
		}
		if err != nil {
			return nil, s.serverError("refresh token lookup", err)
		}
		if !presented.IsRefresh() || !presented.Anonymous {
			return nil, NewError(CodeInvalidRequest, "invalid token: access token presented where refresh token is expected")
		}
		presentedScope, err := presented.EffectiveScope()
		if err != nil {
			return nil, s.serverError("refresh token scope", err)
		}
		if !presentedScope.ContainsScope(requestScope) {
			return nil, NewError(CodeInvalidScope, "invalid scope for refresh token")
		}
	}

	// the bus parameter is required exactly when no refresh token is
	// presented
	if (presented == nil) == (bus == "") {
		return nil, NewError(CodeInvalidRequest, "bus parameter is required if and only if refresh_token is not present")
	}

	var (
		busConfig         *model.BusConfig
		existingChannelID string
		existingTTL       time.Duration
	)
	if bus != "" {
		busConfig, err = s.buses.Get(ctx, bus)
		if errors.Is(err, registry.ErrBusNotFound) {
			return nil, NewError(CodeInvalidRequest, "invalid bus: %s", bus)
		}
		if err != nil {
			return nil, s.serverError("bus lookup", err)
		}
	} else {
		presentedScope, _ := presented.EffectiveScope()
		channels := presentedScope.FieldValues(scope.FieldChannel)
		buses := presentedScope.FieldValues(scope.FieldBus)
		if len(channels) != 1 || len(buses) != 1 {
			return nil, NewError(CodeInvalidRequest, "invalid anonymous refresh token: %s", presented.ID)
		}
		busConfig, err = s.buses.Get(ctx, buses[0])
		if err != nil {
			return nil, s.serverError("bus lookup", err)
		}
		existingChannelID = channels[0]
		existingTTL, err = s.channels.ExpiresIn(ctx, existingChannelID)
		if err != nil {
			return nil, s.serverError("channel expiry lookup", err)
		}
	}

	// channel (and refresh token) must outlive the messages the token
	// can still legitimately retrieve
	tokenTTL := params.AccessTokenExpiration
	longTTL := tokenTTL + busConfig.Retention()
	if existingTTL > longTTL {
		longTTL = existingTTL
	}

	channel, err := s.channels.CreateOrRefresh(ctx, existingChannelID, busConfig.Name, longTTL)
	if err != nil {
		return nil, s.serverError("channel store", err)
	}

	effective := requestScope.
		With(scope.FieldBus, busConfig.Name).
		With(scope.FieldChannel, channel.ID)

	now := time.Now()
	access := backplane.NewToken(backplane.TokenTypeAccess, true, effective, now.Add(tokenTTL))
	if err := s.tokens.Persist(ctx, access); err != nil {
		return nil, s.serverError("access token store", err)
	}
	refresh := backplane.NewToken(backplane.TokenTypeRefresh, true, effective, now.Add(longTTL))
	if err := s.tokens.Persist(ctx, refresh); err != nil {
		return nil, s.serverError("refresh token store", err)
	}

	// a presented refresh token is single-use: replace, never accumulate
	if presented != nil {
		if err := s.tokens.Delete(ctx, presented.ID); err != nil {
			slog.Error("failed to delete used refresh token", "token", presented.ID, "error", err)
		}
	}

	return &TokenResponse{
		AccessToken:  access.ID,
		TokenType:    "Bearer",
		ExpiresIn:    int64(tokenTTL.Seconds()),
		Scope:        effective.String(),
		RefreshToken: refresh.ID,
	}, nil
}

// PrivilegedToken serves a client-authenticated token request for the
// authorization_code, refresh_token and client_credentials grant types.
func (s *TokenService) PrivilegedToken(ctx context.Context, clientID, clientSecret, grantType, code, refreshTokenID, scopeStr string) (*TokenResponse, error) {
	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	var requestScope *scope.Scope
	if strings.TrimSpace(scopeStr) != "" {
		parsed, err := scope.Parse(scopeStr)
		if err != nil {
			return nil, NewError(CodeInvalidScope, "%v", err)
		}
		requestScope = &parsed
	}

	switch grantType {
	case "authorization_code":
		return s.tokenFromCode(ctx, client, code, requestScope)
	case "refresh_token":
		return s.tokenFromRefresh(ctx, client, refreshTokenID, requestScope)
	case "client_credentials":
		return s.tokenFromCredentials(ctx, client, requestScope)
	default:
		return nil, NewError(CodeUnsupportedGrantType, "unsupported grant_type: %s", grantType)
	}
}

func (s *TokenService) authenticateClient(ctx context.Context, clientID, clientSecret string) (*model.Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, NewError(CodeInvalidClient, "client authentication required")
	}
	client, err := s.clients.GetByClientID(ctx, clientID)
	if errors.Is(err, registry.ErrClientNotFound) {
		return nil, NewError(CodeInvalidClient, "unknown client: %s", clientID)
	}
	if err != nil {
		return nil, s.serverError("client lookup", err)
	}
	if client.ClientSecret != clientSecret {
		return nil, NewError(CodeInvalidClient, "invalid client credentials")
	}
	return client, nil
}

func (s *TokenService) tokenFromCode(ctx context.Context, client *model.Client, code string, requestScope *scope.Scope) (*TokenResponse, error) {
	if code == "" {
		return nil, NewError(CodeInvalidRequest, "code is required")
	}
	claims, err := s.parseAuthorizationCode(code)
	if err != nil {
		return nil, err
	}
	if claims.ClientID != client.ClientID {
		return nil, NewError(CodeUnauthorizedClient, "authorization code was not issued to this client")
	}
	grant, err := s.grants.Get(ctx, claims.GrantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewError(CodeInvalidGrant, "grant no longer exists")
	}
	if err != nil {
		return nil, s.serverError("grant lookup", err)
	}
	if grant.State != backplane.GrantStateActive {
		return nil, NewError(CodeInvalidGrant, "grant is not active")
	}
	return s.issuePrivileged(ctx, client, []*backplane.Grant{grant}, requestScope)
}

func (s *TokenService) tokenFromRefresh(ctx context.Context, client *model.Client, refreshTokenID string, requestScope *scope.Scope) (*TokenResponse, error) {
	if refreshTokenID == "" {
		return nil, NewError(CodeInvalidRequest, "refresh_token is required")
	}
	presented, err := s.tokens.Get(ctx, refreshTokenID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewError(CodeInvalidGrant, "invalid refresh token")
	}
	if err != nil {
		return nil, s.serverError("refresh token lookup", err)
	}
	if !presented.IsRefresh() || presented.Anonymous || presented.ClientID != client.ClientID {
		return nil, NewError(CodeInvalidGrant, "invalid refresh token")
	}

	var grants []*backplane.Grant
	for _, grantID := range presented.GrantIDs {
		grant, err := s.grants.Get(ctx, grantID)
		if errors.Is(err, store.ErrNotFound) {
			continue // grant revoked since issuance
		}
		if err != nil {
			return nil, s.serverError("grant lookup", err)
		}
		if grant.State == backplane.GrantStateActive {
			grants = append(grants, grant)
		}
	}
	if len(grants) == 0 {
		return nil, NewError(CodeInvalidGrant, "no active grants back this refresh token")
	}

	resp, err := s.issuePrivileged(ctx, client, grants, requestScope)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Delete(ctx, presented.ID); err != nil {
		slog.Error("failed to delete used refresh token", "token", presented.ID, "error", err)
	}
	return resp, nil
}

func (s *TokenService) tokenFromCredentials(ctx context.Context, client *model.Client, requestScope *scope.Scope) (*TokenResponse, error) {
	grants, err := s.grants.ByClientID(ctx, client.ClientID)
	if err != nil {
		return nil, s.serverError("grant lookup", err)
	}
	if len(grants) == 0 {
		return nil, NewError(CodeInvalidGrant, "no grants issued to client")
	}
	return s.issuePrivileged(ctx, client, grants, requestScope)
}

func (s *TokenService) issuePrivileged(ctx context.Context, client *model.Client, grants []*backplane.Grant, requestScope *scope.Scope) (*TokenResponse, error) {
	authorizedScopes := make([]scope.Scope, 0, len(grants))
	grantIDs := make([]string, 0, len(grants))
	for _, g := range grants {
		sc, err := g.AuthorizedScope()
		if err != nil {
			return nil, s.serverError("grant scope", err)
		}
		authorizedScopes = append(authorizedScopes, sc)
		grantIDs = append(grantIDs, g.ID)
	}

	effective, err := scope.CheckCombine(scope.Union(authorizedScopes...), requestScope)
	switch {
	case errors.Is(err, scope.ErrUnauthorizedScope):
		return nil, NewError(CodeInvalidScope, "%v", err)
	case err != nil:
		return nil, NewError(CodeInvalidGrant, "%v", err)
	}

	now := time.Now()
	access := backplane.NewToken(backplane.TokenTypeAccess, false, effective, now.Add(params.AccessTokenExpiration))
	access.ClientID = client.ClientID
	access.GrantIDs = grantIDs
	if err := s.tokens.Persist(ctx, access); err != nil {
		return nil, s.serverError("access token store", err)
	}

	refresh := backplane.NewToken(backplane.TokenTypeRefresh, false, effective, now.Add(params.RefreshTokenExpiration))
	refresh.ClientID = client.ClientID
	refresh.GrantIDs = grantIDs
	if err := s.tokens.Persist(ctx, refresh); err != nil {
		return nil, s.serverError("refresh token store", err)
	}

	return &TokenResponse{
		AccessToken:  access.ID,
		TokenType:    "Bearer",
		ExpiresIn:    int64(params.AccessTokenExpiration.Seconds()),
		Scope:        effective.String(),
		RefreshToken: refresh.ID,
	}, nil
}

// Authenticate resolves a bearer credential from an Authorization
// header or token query parameter to a live token.
func (s *TokenService) Authenticate(ctx context.Context, bearer string) (*backplane.Token, error) {
	bearer = strings.TrimSpace(strings.TrimPrefix(bearer, "Bearer"))
	if bearer == "" {
		return nil, NewError(CodeInvalidRequest, "access token required")
	}
	token, err := s.tokens.Get(ctx, bearer)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewError(CodeInvalidGrant, "expired or invalid token")
	}
	if err != nil {
		return nil, s.serverError("token lookup", err)
	}
	return token, nil
}

// serverError logs the underlying failure and returns an opaque
// server_error; store detail never leaks to callers.
func (s *TokenService) serverError(op string, err error) *Error {
	slog.Error("token request failed", "op", op, "error", err)
	return NewError(CodeServerError, "error processing token request")
}
