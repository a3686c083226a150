package api

import (
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/openbusio/backplane/internal/audit"
	"github.com/openbusio/backplane/internal/common"
	"github.com/openbusio/backplane/internal/oauth2"
	"github.com/openbusio/backplane/internal/registry"
	"github.com/openbusio/backplane/model"
	"github.com/openbusio/backplane/params"
	"golang.org/x/crypto/bcrypt"
)

// ProvisionHandler manages the durable registry: buses, clients and bus
// owners. Guarded by the deployment's admin key.
type ProvisionHandler struct {
	adminKey     string
	buses        registry.BusRepository
	clients      registry.ClientRepository
	owners       registry.OwnerRepository
	grantService *oauth2.GrantService
	debug        bool
}

func NewProvisionHandler(
	adminKey string,
	buses registry.BusRepository,
	clients registry.ClientRepository,
	owners registry.OwnerRepository,
	grantService *oauth2.GrantService,
	debug bool) *ProvisionHandler {
	return &ProvisionHandler{
		adminKey:     adminKey,
		buses:        buses,
		clients:      clients,
		owners:       owners,
		grantService: grantService,
		debug:        debug,
	}
}

// RequireAdmin is the middleware guarding every provisioning route.
func (h *ProvisionHandler) RequireAdmin(ctx *fiber.Ctx) error {
	if subtle.ConstantTimeCompare([]byte(bearerToken(ctx)), []byte(h.adminKey)) != 1 {
		return ctx.SendStatus(fiber.StatusUnauthorized)
	}
	return ctx.Next()
}

type provisionBusRequest struct {
	Name                   string `json:"name"`
	Owner                  string `json:"owner"`
	RetentionSeconds       int    `json:"retention_seconds"`
	StickyRetentionSeconds int    `json:"sticky_retention_seconds"`
}

func (h *ProvisionHandler) PostBus(ctx *fiber.Ctx) error {
	var req provisionBusRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed bus definition")
	}
	if _, err := h.owners.GetByUsername(ctx.Context(), req.Owner); errors.Is(err, registry.ErrOwnerNotFound) {
		return fiber.NewError(fiber.StatusBadRequest, "unknown bus owner: "+req.Owner)
	} else if err != nil {
		return err
	}
	bus := &model.BusConfig{
		Name:                   req.Name,
		Owner:                  req.Owner,
		RetentionSeconds:       req.RetentionSeconds,
		StickyRetentionSeconds: req.StickyRetentionSeconds,
	}
	if err := h.buses.Create(ctx.Context(), bus); err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			return fiber.NewError(fiber.StatusConflict, "bus already exists")
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	audit.RecordBusProvisioned(ctx.Context(), audit.BusRecord{Actor: req.Owner, Bus: req.Name})
	return ctx.SendStatus(fiber.StatusCreated)
}

// DeleteBus deprovisions a bus, stripping it from every grant and
// revoking the tokens those grants back.
func (h *ProvisionHandler) DeleteBus(ctx *fiber.Ctx) error {
	name := ctx.Params("name")
	cfg, err := h.buses.Get(ctx.Context(), name)
	if errors.Is(err, registry.ErrBusNotFound) {
		return ctx.SendStatus(fiber.StatusNotFound)
	}
	if err != nil {
		return err
	}
	if err := h.grantService.DeprovisionBus(ctx.Context(), cfg.Owner, name); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

type provisionClientRequest struct {
	Name         string `json:"name"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
	SourceURL    string `json:"source_url"`
}

func (h *ProvisionHandler) PostClient(ctx *fiber.Ctx) error {
	var req provisionClientRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed client definition")
	}
	if req.ClientID == "" || req.RedirectURI == "" {
		return fiber.NewError(fiber.StatusBadRequest, "client_id and redirect_uri are required")
	}
	if req.ClientSecret == "" {
		secret, err := common.GenerateSecret(params.ClientSecretLength)
		if err != nil {
			return err
		}
		req.ClientSecret = secret
	}
	client := &model.Client{
		Name:         req.Name,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		RedirectURI:  req.RedirectURI,
		SourceURL:    req.SourceURL,
	}
	if err := h.clients.Create(ctx.Context(), client); err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			return fiber.NewError(fiber.StatusConflict, "client already exists")
		}
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"client_id":     client.ClientID,
		"client_secret": client.ClientSecret,
	})
}

func (h *ProvisionHandler) DeleteClient(ctx *fiber.Ctx) error {
	if err := h.clients.Delete(ctx.Context(), ctx.Params("client_id")); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

type provisionOwnerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *ProvisionHandler) PostOwner(ctx *fiber.Ctx) error {
	var req provisionOwnerRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed owner definition")
	}
	if req.Username == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	owner := &model.BusOwner{
		Username:     req.Username,
		PasswordHash: string(hash),
	}
	if err := h.owners.Create(ctx.Context(), owner); err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			return fiber.NewError(fiber.StatusConflict, "owner already exists")
		}
		return err
	}
	return ctx.SendStatus(fiber.StatusCreated)
}
