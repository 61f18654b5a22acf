package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vanishedbrands/download-service/internal/config"
	"github.com/vanishedbrands/download-service/internal/domain"
	"github.com/vanishedbrands/download-service/internal/events"
	"github.com/vanishedbrands/download-service/internal/payment"
	"github.com/vanishedbrands/download-service/internal/repository"
	"github.com/vanishedbrands/download-service/internal/storage"
	apperrors "github.com/vanishedbrands/download-service/pkg/util"
)

// CheckoutService drives the purchase flow against the payment gateway:
// order creation at the server-configured price, idempotent capture that
// mints the download token, and webhook reconciliation.
type CheckoutService struct {
	gateway    payment.Gateway
	orders     repository.OrderRepository
	issuer     *IssuerService
	resolver   *repository.ResourceResolver
	dispatcher events.Dispatcher
	logger     *zap.Logger
	payCfg     config.PaymentConfig
	dlCfg      config.DownloadConfig
	now        func() time.Time
}

// CheckoutDependencies bundles collaborators for the checkout service.
type CheckoutDependencies struct {
	Gateway    payment.Gateway
	OrderRepo  repository.OrderRepository
	Issuer     *IssuerService
	Resolver   *repository.ResourceResolver
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewCheckoutService constructs the service.
func NewCheckoutService(payCfg config.PaymentConfig, dlCfg config.DownloadConfig, deps CheckoutDependencies) *CheckoutService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutService{
		gateway:    deps.Gateway,
		orders:     deps.OrderRepo,
		issuer:     deps.Issuer,
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		payCfg:     payCfg,
		dlCfg:      dlCfg,
		now:        time.Now,
	}
}

// CreateOrder opens a gateway order for the configured product. Price and
// currency come from configuration only; the client never supplies amounts.
func (s *CheckoutService) CreateOrder(ctx context.Context) (string, error) {
	orderID, err := s.gateway.CreateOrder(ctx)
	if err != nil {
		s.logger.Error("gateway order creation failed", zap.Error(err))
		return "", apperrors.NewUpstreamFailure("could not create order", err)
	}
	return orderID, nil
}

// CaptureOutcome reports a capture call.
type CaptureOutcome struct {
	TokenID          string
	AlreadyProcessed bool
}

// Capture captures the approved order at the gateway, verifies the paid
// amount, and mints the download token. Repeat calls for an order that
// already completed return the previously minted token unchanged.
func (s *CheckoutService) Capture(ctx context.Context, orderID string) (*CaptureOutcome, error) {
	if !domain.IsValidOrderID(orderID) {
		return nil, apperrors.NewValidationError("orderID required/invalid", nil)
	}

	existing, err := s.orders.Get(ctx, orderID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NewUpstreamFailure("could not load order", err)
	}
	if existing.Completed() {
		return &CaptureOutcome{TokenID: existing.TokenID, AlreadyProcessed: true}, nil
	}

	result, err := s.gateway.CaptureOrder(ctx, orderID)
	if err != nil {
		s.saveDiagnostic(ctx, orderID, existing, domain.OrderStatusError, domain.OrderStageCaptureError, "non-OK capture response")
		s.logger.Error("gateway capture failed", zap.String("order_id", orderID), zap.Error(err))
		return nil, apperrors.NewUpstreamFailure("payment capture failed", err)
	}

	if result.Status != string(domain.OrderStatusCompleted) {
		status := domain.OrderStatus(result.Status)
		if status == "" {
			status = domain.OrderStatusUnknown
		}
		s.saveDiagnostic(ctx, orderID, existing, status, domain.OrderStageNotCompleted, "")
		return nil, apperrors.NewDomainError("PAYMENT_NOT_COMPLETED", "payment not completed", 400,
			map[string]any{"status": result.Status})
	}

	if result.Amount != s.payCfg.Price || result.Currency != s.payCfg.Currency {
		s.saveDiagnostic(ctx, orderID, existing, domain.OrderStatusAmountMismatch, domain.OrderStageVerifyAmount, "")
		s.logger.Warn("captured amount mismatch",
			zap.String("order_id", orderID),
			zap.String("amount", result.Amount),
			zap.String("currency", result.Currency))
		return nil, apperrors.NewDomainError("AMOUNT_MISMATCH", "amount mismatch", 400,
			map[string]any{"amount": result.Amount, "currency": result.Currency})
	}

	resourceKey, err := s.resolver.Resolve(ctx)
	if err != nil {
		s.saveDiagnostic(ctx, orderID, existing, domain.OrderStatusConfigError, domain.OrderStageResolveResource,
			"no resource key configured")
		return nil, apperrors.NewInternalError(err)
	}

	record, err := s.issuer.Issue(ctx, orderID, resourceKey, s.dlCfg.TokenTTL, s.dlCfg.MaxUses)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &domain.Order{
		OrderID:     orderID,
		Status:      domain.OrderStatusCompleted,
		TokenID:     record.ID,
		Amount:      result.Amount,
		Currency:    result.Currency,
		CaptureID:   result.CaptureID,
		ResourceKey: resourceKey,
		Gateway: &domain.GatewayRef{
			ID:     result.OrderRef.ID,
			Intent: result.OrderRef.Intent,
			Status: result.OrderRef.Status,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil && !existing.CreatedAt.IsZero() {
		order.CreatedAt = existing.CreatedAt
	}
	if result.PayerID != "" || result.PayerEmail != "" {
		order.Payer = &domain.Payer{PayerID: result.PayerID, Email: result.PayerEmail}
	}
	if err := s.orders.Save(ctx, order); err != nil {
		// The token is already minted; losing the order row costs only the
		// idempotency short-circuit, so surface the failure for support.
		s.logger.Error("order row write failed after mint",
			zap.String("order_id", orderID), zap.Error(err))
		return nil, apperrors.NewUpstreamFailure("could not persist order", err)
	}

	s.publish(ctx, events.Event{
		Type:      events.EventOrderCaptured,
		OrderID:   orderID,
		TokenID:   record.ID,
		Timestamp: now,
		Payload: events.OrderCapturedPayload{
			Amount:    result.Amount,
			Currency:  result.Currency,
			CaptureID: result.CaptureID,
		},
	})
	return &CaptureOutcome{TokenID: record.ID}, nil
}

// ReconcileWebhook verifies the gateway's signature before trusting the
// event, then best-effort updates the order row's breadcrumbs. Events
// without a resolvable order id are acknowledged and dropped.
func (s *CheckoutService) ReconcileWebhook(ctx context.Context, sig payment.WebhookSignature, event json.RawMessage) error {
	if len(event) == 0 {
		return apperrors.NewValidationError("empty webhook body", nil)
	}
	ok, err := s.gateway.VerifyWebhookSignature(ctx, sig, event)
	if err != nil {
		return apperrors.NewUpstreamFailure("webhook verification failed", err)
	}
	if !ok {
		return apperrors.NewUnauthorized("bad webhook signature")
	}

	eventType, resourceID, resourceStatus := payment.EventSummary(event)
	orderID := payment.OrderIDFromEvent(event)
	if orderID == "" {
		s.logger.Warn("webhook without resolvable order id", zap.String("event_type", eventType))
		return nil
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return apperrors.NewUpstreamFailure("could not load order", err)
		}
		order = &domain.Order{OrderID: orderID, CreatedAt: s.now()}
	}
	order.LastEvent = eventType
	order.WebhookSeen = s.now()
	order.UpdatedAt = s.now()
	if resourceID != "" {
		order.CaptureID = resourceID
	}
	if resourceStatus != "" {
		order.Status = domain.OrderStatus(resourceStatus)
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return apperrors.NewUpstreamFailure("could not persist order", err)
	}

	s.logger.Info("webhook reconciled",
		zap.String("order_id", orderID),
		zap.String("event_type", eventType))
	return nil
}

// saveDiagnostic persists a failure row so support can reconstruct the
// capture attempt. Write errors here are logged and swallowed; the original
// failure is what the caller reports.
func (s *CheckoutService) saveDiagnostic(ctx context.Context, orderID string, existing *domain.Order, status domain.OrderStatus, stage domain.OrderStage, note string) {
	now := s.now()
	order := &domain.Order{
		OrderID:   orderID,
		Status:    status,
		Stage:     stage,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil && !existing.CreatedAt.IsZero() {
		order.CreatedAt = existing.CreatedAt
	}
	if err := s.orders.Save(ctx, order); err != nil {
		s.logger.Error("diagnostic order row write failed",
			zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *CheckoutService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
