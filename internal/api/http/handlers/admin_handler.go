package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vanishedbrands/download-service/internal/api/dto"
	"github.com/vanishedbrands/download-service/internal/config"
	"github.com/vanishedbrands/download-service/internal/service"
	apperrors "github.com/vanishedbrands/download-service/pkg/util"
)

// AdminHandler exposes support operations behind the shared-secret guard.
type AdminHandler struct {
	issuer  *service.IssuerService
	dataset *service.DatasetService
	cfg     config.DownloadConfig
}

// NewAdminHandler constructs handler.
func NewAdminHandler(issuer *service.IssuerService, dataset *service.DatasetService, cfg config.DownloadConfig) *AdminHandler {
	return &AdminHandler{issuer: issuer, dataset: dataset, cfg: cfg}
}

// Reissue POST /admin/tokens/reissue. Revokes the order's current token best
// effort and mints a replacement.
func (h *AdminHandler) Reissue(c *fiber.Ctx) error {
	var req dto.ReissueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	maxUses := req.MaxUses
	if maxUses <= 0 {
		maxUses = h.cfg.MaxUses
	}
	ttl := h.cfg.TokenTTL
	if req.TTLHours > 0 {
		ttl = time.Duration(req.TTLHours) * time.Hour
	}

	result, err := h.issuer.Reissue(c.UserContext(), req.OrderID, ttl, maxUses)
	if err != nil {
		return err
	}
	return c.JSON(dto.ReissueResponse{
		Token:      result.Token.ID,
		MaxUses:    result.MaxUses,
		ExpiresAt:  result.Token.ExpiresAt,
		RevokedOld: result.RevokedOld,
	})
}

// MintLink POST /admin/links. Signs a legacy dataset link for a buyer.
func (h *AdminHandler) MintLink(c *fiber.Ctx) error {
	var req dto.MintLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	link, err := h.dataset.MintLink(req.Email, req.Version)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.MintLinkResponse{
		Token:     link.Token,
		Email:     link.Email,
		Version:   link.Version,
		ExpiresAt: link.ExpiresAt,
	})
}
