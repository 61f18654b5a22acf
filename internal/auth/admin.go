package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/vanishedbrands/download-service/pkg/util"
)

const adminHeader = "X-Admin-Secret"

// AdminMiddleware guards elevated operations with an out-of-band shared
// secret compared in constant time against the request header.
type AdminMiddleware struct {
	secret []byte
}

// NewAdminMiddleware constructs middleware. An empty secret disables all
// admin routes rather than leaving them open.
func NewAdminMiddleware(secret string) *AdminMiddleware {
	return &AdminMiddleware{secret: []byte(secret)}
}

// Handle enforces the admin secret.
func (m *AdminMiddleware) Handle(c *fiber.Ctx) error {
	if len(m.secret) == 0 {
		return apperrors.NewForbidden("admin operations not configured")
	}
	provided := c.Get(adminHeader)
	if provided == "" {
		return apperrors.NewForbidden("forbidden")
	}
	if subtle.ConstantTimeCompare([]byte(provided), m.secret) != 1 {
		return apperrors.NewForbidden("forbidden")
	}
	return c.Next()
}
