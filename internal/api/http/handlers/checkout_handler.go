package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vanishedbrands/download-service/internal/api/dto"
	"github.com/vanishedbrands/download-service/internal/payment"
	"github.com/vanishedbrands/download-service/internal/service"
)

// CheckoutHandler exposes the purchase flow and the gateway webhook.
type CheckoutHandler struct {
	service *service.CheckoutService
}

// NewCheckoutHandler constructs handler.
func NewCheckoutHandler(checkoutService *service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{service: checkoutService}
}

// CreateOrder POST /checkout/orders. The body is ignored; price and currency
// are server-side configuration only.
func (h *CheckoutHandler) CreateOrder(c *fiber.Ctx) error {
	orderID, err := h.service.CreateOrder(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(dto.CreateOrderResponse{OrderID: orderID})
}

// Capture POST /checkout/orders/:id/capture. Idempotent: a repeat call for a
// completed order returns the original token.
func (h *CheckoutHandler) Capture(c *fiber.Ctx) error {
	outcome, err := h.service.Capture(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.CaptureResponse{
		Status:           "COMPLETED",
		Token:            outcome.TokenID,
		AlreadyProcessed: outcome.AlreadyProcessed,
	})
}

// Webhook POST /webhooks/payment. Signature headers are passed to the gateway
// for verification before anything in the body is trusted.
func (h *CheckoutHandler) Webhook(c *fiber.Ctx) error {
	sig := payment.WebhookSignature{
		AuthAlgo:         c.Get("Paypal-Auth-Algo"),
		CertURL:          c.Get("Paypal-Cert-Url"),
		TransmissionID:   c.Get("Paypal-Transmission-Id"),
		TransmissionSig:  c.Get("Paypal-Transmission-Sig"),
		TransmissionTime: c.Get("Paypal-Transmission-Time"),
	}
	body := make([]byte, len(c.Body()))
	copy(body, c.Body())
	if err := h.service.ReconcileWebhook(c.UserContext(), sig, body); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"received": true})
}
