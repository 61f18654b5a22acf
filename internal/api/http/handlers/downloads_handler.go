package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vanishedbrands/download-service/internal/api/dto"
	"github.com/vanishedbrands/download-service/internal/domain"
	"github.com/vanishedbrands/download-service/internal/service"
	apperrors "github.com/vanishedbrands/download-service/pkg/util"
)

// DownloadsHandler exposes token redemption and inspection.
type DownloadsHandler struct {
	service *service.RedemptionService
}

// NewDownloadsHandler constructs handler.
func NewDownloadsHandler(redemptionService *service.RedemptionService) *DownloadsHandler {
	return &DownloadsHandler{service: redemptionService}
}

// Redeem GET /downloads/:token. Redirects to the signed URL so emailed links
// work in a bare browser; ?peek=1 returns the usage snapshot without
// consuming a use.
func (h *DownloadsHandler) Redeem(c *fiber.Ctx) error {
	tokenID := strings.TrimSpace(c.Params("token"))
	if c.Query("peek") == "1" {
		snapshot, err := h.service.Peek(c.UserContext(), tokenID)
		if err != nil {
			return err
		}
		return c.JSON(peekResponse(snapshot))
	}

	result, err := h.service.Redeem(c.UserContext(), tokenID)
	if err != nil {
		return err
	}
	return c.Redirect(result.URL, fiber.StatusFound)
}

// RedeemJSON POST /downloads. Same consumption semantics as the GET form but
// returns the URL in a JSON envelope for script clients.
func (h *DownloadsHandler) RedeemJSON(c *fiber.Ctx) error {
	var req dto.RedeemRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.Redeem(c.UserContext(), strings.TrimSpace(req.Token))
	if err != nil {
		return err
	}
	return c.JSON(dto.RedeemResponse{
		URL:       result.URL,
		Uses:      result.Snapshot.Uses,
		MaxUses:   result.Snapshot.MaxUses,
		ExpiresAt: result.Snapshot.ExpiresAt,
		Last:      result.Snapshot.Last,
	})
}

func peekResponse(snapshot domain.UsageSnapshot) dto.PeekResponse {
	return dto.PeekResponse{
		Uses:      snapshot.Uses,
		MaxUses:   snapshot.MaxUses,
		Remaining: snapshot.Remaining,
		ExpiresAt: snapshot.ExpiresAt,
		Last:      snapshot.Last,
	}
}
