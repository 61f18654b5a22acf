package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanishedbrands/download-service/internal/config"
	"github.com/vanishedbrands/download-service/internal/domain"
	"github.com/vanishedbrands/download-service/internal/payment"
	"github.com/vanishedbrands/download-service/internal/repository"
	"github.com/vanishedbrands/download-service/internal/storage"
	"github.com/vanishedbrands/download-service/internal/storage/memory"
)

type fakeGateway struct {
	createID   string
	createErr  error
	capture    *payment.CaptureResult
	captureErr error
	verifyOK   bool
	verifyErr  error

	captureCalls int
}

func (g *fakeGateway) CreateOrder(context.Context) (string, error) {
	return g.createID, g.createErr
}

func (g *fakeGateway) CaptureOrder(context.Context, string) (*payment.CaptureResult, error) {
	g.captureCalls++
	return g.capture, g.captureErr
}

func (g *fakeGateway) VerifyWebhookSignature(context.Context, payment.WebhookSignature, json.RawMessage) (bool, error) {
	return g.verifyOK, g.verifyErr
}

type checkoutFixture struct {
	store    *memory.Store
	orders   repository.OrderRepository
	tokens   repository.TokenRepository
	gateway  *fakeGateway
	checkout *CheckoutService
}

func newCheckoutFixture(t *testing.T, gateway *fakeGateway) *checkoutFixture {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.Put(context.Background(), testResourceKey, []byte("name\n"), storage.PutOptions{}))

	tokens := repository.NewTokenRepository(store, "tokens/", "tokens-state/")
	orders := repository.NewOrderRepository(store, "orders/")
	resolver := repository.NewResourceResolver(store, "exports/manifest.json", testResourceKey)
	issuer := NewIssuerService(IssuerDependencies{
		TokenRepo: tokens,
		OrderRepo: orders,
		Resolver:  resolver,
	})
	checkout := NewCheckoutService(
		config.PaymentConfig{Price: "9.00", Currency: "USD"},
		config.DownloadConfig{TokenTTL: 24 * time.Hour, MaxUses: 3},
		CheckoutDependencies{
			Gateway:   gateway,
			OrderRepo: orders,
			Issuer:    issuer,
			Resolver:  resolver,
		})
	return &checkoutFixture{store: store, orders: orders, tokens: tokens, gateway: gateway, checkout: checkout}
}

func completedCapture() *payment.CaptureResult {
	return &payment.CaptureResult{
		Status:     "COMPLETED",
		Amount:     "9.00",
		Currency:   "USD",
		PayerID:    "QYR5Z8XDVJNXQ",
		PayerEmail: "buyer@example.com",
		CaptureID:  "3C679366HH908993F",
		OrderRef:   payment.OrderRef{ID: "5O190127TN364715T", Intent: "CAPTURE", Status: "COMPLETED"},
	}
}

func TestCreateOrderPassesThroughGatewayID(t *testing.T) {
	fx := newCheckoutFixture(t, &fakeGateway{createID: "5O190127TN364715T"})
	id, err := fx.checkout.CreateOrder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5O190127TN364715T", id)
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	fx := newCheckoutFixture(t, &fakeGateway{createErr: assert.AnError})
	_, err := fx.checkout.CreateOrder(context.Background())
	assert.Equal(t, "UPSTREAM_FAILURE", domainCode(t, err))
}

func TestCaptureMintsTokenAndSavesOrder(t *testing.T) {
	fx := newCheckoutFixture(t, &fakeGateway{capture: completedCapture()})
	ctx := context.Background()

	outcome, err := fx.checkout.Capture(ctx, "5O190127TN364715T")
	require.NoError(t, err)
	assert.False(t, outcome.AlreadyProcessed)
	assert.True(t, domain.IsValidTokenID(outcome.TokenID))

	order, err := fx.orders.Get(ctx, "5O190127TN364715T")
	require.NoError(t, err)
	assert.True(t, order.Completed())
	assert.Equal(t, outcome.TokenID, order.TokenID)
	assert.Equal(t, "9.00", order.Amount)
	assert.Equal(t, "buyer@example.com", order.Payer.Email)
	assert.Equal(t, testResourceKey, order.ResourceKey)
	assert.Equal(t, "CAPTURE", order.Gateway.Intent)

	state, err := fx.tokens.GetState(ctx, outcome.TokenID)
	require.NoError(t, err)
	assert.Equal(t, 3, state.MaxUses)
}

func TestCaptureIdempotentForCompletedOrder(t *testing.T) {
	fx := newCheckoutFixture(t, &fakeGateway{capture: completedCapture()})
	ctx := context.Background()

	first, err := fx.checkout.Capture(ctx, "5O190127TN364715T")
	require.NoError(t, err)

	second, err := fx.checkout.Capture(ctx, "5O190127TN364715T")
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.TokenID, second.TokenID)
	assert.Equal(t, 1, fx.gateway.captureCalls)
}

func TestCaptureGatewayErrorLeavesDiagnosticRow(t *testing.T) {
	fx := newCheckoutFixture(t, &fakeGateway{captureErr: assert.AnError})
	ctx := context.Background()

	_, err := fx.checkout.Capture(ctx, "5O190127TN364715T")
	assert.Equal(t, "UPSTREAM_FAILURE", domainCode(t, err))

	order, err := fx.orders.Get(ctx, "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusError, order.Status)
	assert.Equal(t, domain.OrderStageCaptureError, order.Stage)
	assert.False(t, order.Completed())
}

func TestCaptureNotCompletedStatus(t *testing.T) {
	capture := completedCapture()
	capture.Status = "PENDING"
	fx := newCheckoutFixture(t, &fakeGateway{capture: capture})
	ctx := context.Background()

	_, err := fx.checkout.Capture(ctx, "5O190127TN364715T")
	assert.Equal(t, "PAYMENT_NOT_COMPLETED", domainCode(t, err))

	order, err := fx.orders.Get(ctx, "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatus("PENDING"), order.Status)
	assert.Equal(t, domain.OrderStageNotCompleted, order.Stage)
}

func TestCaptureAmountMismatch(t *testing.T) {
	capture := completedCapture()
	capture.Amount = "0.01"
	fx := newCheckoutFixture(t, &fakeGateway{capture: capture})
	ctx := context.Background()

	_, err := fx.checkout.Capture(ctx, "5O190127TN364715T")
	assert.Equal(t, "AMOUNT_MISMATCH", domainCode(t, err))

	order, err := fx.orders.Get(ctx, "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusAmountMismatch, order.Status)
	assert.Equal(t, domain.OrderStageVerifyAmount, order.Stage)

	// No token was minted for the mismatched payment.
	assert.Empty(t, fx.store.Keys("tokens/"))
}

func TestCaptureCurrencyMismatch(t *testing.T) {
	capture := completedCapture()
	capture.Currency = "EUR"
	fx := newCheckoutFixture(t, &fakeGateway{capture: capture})

	_, err := fx.checkout.Capture(context.Background(), "5O190127TN364715T")
	assert.Equal(t, "AMOUNT_MISMATCH", domainCode(t, err))
}

func TestCaptureInvalidOrderID(t *testing.T) {
	fx := newCheckoutFixture(t, &fakeGateway{capture: completedCapture()})
	_, err := fx.checkout.Capture(context.Background(), "nope!")
	assert.Equal(t, "VALIDATION_FAILED", domainCode(t, err))
	assert.Equal(t, 0, fx.gateway.captureCalls)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	fx := newCheckoutFixture(t, &fakeGateway{verifyOK: false})
	err := fx.checkout.ReconcileWebhook(context.Background(), payment.WebhookSignature{}, json.RawMessage(`{"event_type":"PAYMENT.CAPTURE.COMPLETED"}`))
	assert.Equal(t, "UNAUTHORIZED", domainCode(t, err))
}

func TestWebhookVerificationFailure(t *testing.T) {
	fx := newCheckoutFixture(t, &fakeGateway{verifyErr: assert.AnError})
	err := fx.checkout.ReconcileWebhook(context.Background(), payment.WebhookSignature{}, json.RawMessage(`{}`))
	assert.Equal(t, "UPSTREAM_FAILURE", domainCode(t, err))
}

func TestWebhookUpdatesOrderBreadcrumbs(t *testing.T) {
	fx := newCheckoutFixture(t, &fakeGateway{capture: completedCapture(), verifyOK: true})
	ctx := context.Background()

	_, err := fx.checkout.Capture(ctx, "5O190127TN364715T")
	require.NoError(t, err)

	event := json.RawMessage(`{
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "3C679366HH908993F",
			"status": "COMPLETED",
			"supplementary_data": {"related_ids": {"order_id": "5O190127TN364715T"}}
		}
	}`)
	require.NoError(t, fx.checkout.ReconcileWebhook(ctx, payment.WebhookSignature{}, event))

	order, err := fx.orders.Get(ctx, "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, "PAYMENT.CAPTURE.COMPLETED", order.LastEvent)
	assert.False(t, order.WebhookSeen.IsZero())
	assert.Equal(t, "3C679366HH908993F", order.CaptureID)
}

func TestWebhookWithoutOrderIDIsAcknowledged(t *testing.T) {
	fx := newCheckoutFixture(t, &fakeGateway{verifyOK: true})
	err := fx.checkout.ReconcileWebhook(context.Background(), payment.WebhookSignature{}, json.RawMessage(`{"event_type":"CHECKOUT.ORDER.APPROVED"}`))
	assert.NoError(t, err)
}

func TestWebhookCreatesRowForUnknownOrder(t *testing.T) {
	fx := newCheckoutFixture(t, &fakeGateway{verifyOK: true})
	ctx := context.Background()

	event := json.RawMessage(`{
		"event_type": "PAYMENT.CAPTURE.DENIED",
		"resource": {"id": "5O190127TN364715T", "status": "DENIED"}
	}`)
	require.NoError(t, fx.checkout.ReconcileWebhook(ctx, payment.WebhookSignature{}, event))

	order, err := fx.orders.Get(ctx, "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, "PAYMENT.CAPTURE.DENIED", order.LastEvent)
	assert.Equal(t, domain.OrderStatus("DENIED"), order.Status)
}

func TestWebhookEmptyBody(t *testing.T) {
	fx := newCheckoutFixture(t, &fakeGateway{verifyOK: true})
	err := fx.checkout.ReconcileWebhook(context.Background(), payment.WebhookSignature{}, nil)
	assert.Equal(t, "VALIDATION_FAILED", domainCode(t, err))
}
