package http

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/vanishedbrands/download-service/internal/observability"
	"github.com/vanishedbrands/download-service/internal/ratelimit"
	apperrors "github.com/vanishedbrands/download-service/pkg/util"
)

// Usage caps reset through support, not on a clock, so the hint is a day.
const limitReachedRetryAfter = "86400"

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration, corsOrigin string) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigin,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,X-Admin-Secret",
	}))
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(observability.RequestLogger(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := apperrors.ToDomainError(err)
				metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)
				if domainErr.Code == "LIMIT_REACHED" {
					c.Set(fiber.HeaderRetryAfter, limitReachedRetryAfter)
				}
				response := fiber.Map{"error": fiber.Map{
					"code":    domainErr.Code,
					"message": domainErr.Message,
				}}
				if len(domainErr.Details) > 0 {
					response["error"].(fiber.Map)["details"] = domainErr.Details
				}
				if domainErr.HTTPStatus >= 500 {
					logger.Error("request failed", zap.Error(domainErr))
				}
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(response)
				err = nil
			}
		}()
		return c.Next()
	}
}

// RateLimitMiddleware applies the advisory per-client limiter to public
// endpoints. The limiter fails open; it shields the gateway and the store
// from bursts, correctness comes from the conditional writes underneath.
func RateLimitMiddleware(limiter *ratelimit.Limiter) fiber.Handler {
	window := strconv.Itoa(int(limiter.Window().Seconds()))
	return func(c *fiber.Ctx) error {
		if !limiter.Allow(c.UserContext(), clientIP(c)) {
			c.Set(fiber.HeaderRetryAfter, window)
			return apperrors.NewRateLimited("too many requests")
		}
		return c.Next()
	}
}

// clientIP takes the first hop of X-Forwarded-For when present; behind the
// usual proxy chain that is the caller's address.
func clientIP(c *fiber.Ctx) string {
	if fwd := c.Get(fiber.HeaderXForwardedFor); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	return c.IP()
}
