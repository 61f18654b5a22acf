package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/vanishedbrands/download-service/internal/service"
	"github.com/vanishedbrands/download-service/internal/storage"
	apperrors "github.com/vanishedbrands/download-service/pkg/util"
)

// DatasetHandler serves legacy signed-link dataset downloads.
type DatasetHandler struct {
	service *service.DatasetService
}

// NewDatasetHandler constructs handler.
func NewDatasetHandler(datasetService *service.DatasetService) *DatasetHandler {
	return &DatasetHandler{service: datasetService}
}

// Download GET /data/download?token=<link>. Streams the watermarked CSV as
// an attachment.
func (h *DatasetHandler) Download(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return apperrors.NewUnauthorized("invalid or expired link")
	}
	download, err := h.service.Fetch(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, storage.ContentTypeCSV)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(download.Content)
}
