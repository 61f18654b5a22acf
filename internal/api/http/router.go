package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/vanishedbrands/download-service/internal/api/http/handlers"
	"github.com/vanishedbrands/download-service/internal/auth"
	"github.com/vanishedbrands/download-service/internal/observability"
	"github.com/vanishedbrands/download-service/internal/ratelimit"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health          *handlers.HealthHandler
	Downloads       *handlers.DownloadsHandler
	Checkout        *handlers.CheckoutHandler
	Admin           *handlers.AdminHandler
	Dataset         *handlers.DatasetHandler
	AdminMiddleware *auth.AdminMiddleware
	Limiter         *ratelimit.Limiter
	Metrics         *observability.Metrics
}

// RegisterRoutes wires HTTP routes. Public endpoints sit behind the advisory
// rate limiter; admin endpoints behind the shared-secret guard.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	public := app.Group("", RateLimitMiddleware(cfg.Limiter))
	public.Get("/downloads/:token", cfg.Downloads.Redeem)
	public.Post("/downloads", cfg.Downloads.RedeemJSON)
	public.Post("/checkout/orders", cfg.Checkout.CreateOrder)
	public.Post("/checkout/orders/:id/capture", cfg.Checkout.Capture)
	public.Get("/data/download", cfg.Dataset.Download)

	app.Post("/webhooks/payment", cfg.Checkout.Webhook)

	admin := app.Group("/admin", cfg.AdminMiddleware.Handle)
	admin.Post("/tokens/reissue", cfg.Admin.Reissue)
	admin.Post("/links", cfg.Admin.MintLink)
}
