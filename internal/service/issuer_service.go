package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vanishedbrands/download-service/internal/domain"
	"github.com/vanishedbrands/download-service/internal/events"
	"github.com/vanishedbrands/download-service/internal/repository"
	"github.com/vanishedbrands/download-service/internal/storage"
	apperrors "github.com/vanishedbrands/download-service/pkg/util"
)

// ErrIssueIncomplete marks a token whose usage state failed to persist after
// the record write succeeded. Such a token denies redemption (fail closed);
// the caller should retry issuance.
var ErrIssueIncomplete = errors.New("issuer: token issued without usage state")

// IssuerService mints download tokens and handles administrative
// re-issuance.
type IssuerService struct {
	tokens     repository.TokenRepository
	orders     repository.OrderRepository
	resolver   *repository.ResourceResolver
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// IssuerDependencies bundles collaborators for the issuer service.
type IssuerDependencies struct {
	TokenRepo  repository.TokenRepository
	OrderRepo  repository.OrderRepository
	Resolver   *repository.ResourceResolver
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewIssuerService constructs the service.
func NewIssuerService(deps IssuerDependencies) *IssuerService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssuerService{
		tokens:     deps.TokenRepo,
		orders:     deps.OrderRepo,
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Issue mints a fresh token bound to resourceKey for the given order. The
// caller is responsible for having verified the purchase; Issue always mints
// and is deliberately not idempotent per order.
func (s *IssuerService) Issue(ctx context.Context, orderID, resourceKey string, ttl time.Duration, maxUses int) (*domain.TokenRecord, error) {
	if ttl <= 0 {
		return nil, apperrors.NewValidationError("ttl must be positive", nil)
	}
	if maxUses < 1 {
		return nil, apperrors.NewValidationError("maxUses must be at least 1", nil)
	}

	now := s.now()
	record := &domain.TokenRecord{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		ResourceKey: resourceKey,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	// The id is freshly random, so both writes are uncontended creates.
	if err := s.tokens.CreateRecord(ctx, record); err != nil {
		return nil, apperrors.NewUpstreamFailure("could not persist token", err)
	}
	if err := s.tokens.CreateState(ctx, record.ID, maxUses, record.ExpiresAt); err != nil {
		// Record exists without state: redemption denies it, so the only
		// damage is a dead token id.
		s.logger.Error("usage state write failed after token record",
			zap.String("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrIssueIncomplete, err)
	}

	s.publish(ctx, events.Event{
		Type:      events.EventTokenIssued,
		OrderID:   orderID,
		TokenID:   record.ID,
		Timestamp: now,
		Payload: events.TokenIssuedPayload{
			ResourceKey: resourceKey,
			MaxUses:     maxUses,
			ExpiresAt:   record.ExpiresAt,
		},
	})
	return record, nil
}

// ReissueResult reports the outcome of an administrative re-mint.
type ReissueResult struct {
	Token       *domain.TokenRecord
	MaxUses     int
	RevokedOld  bool
	ResourceKey string
}

// Reissue invalidates the order's current token (best effort) and mints a
// replacement. Revocation losing a race with an in-flight redemption is
// tolerated; minting always proceeds.
func (s *IssuerService) Reissue(ctx context.Context, orderID string, ttl time.Duration, maxUses int) (*ReissueResult, error) {
	if !domain.IsValidOrderID(orderID) {
		return nil, apperrors.NewValidationError("orderID required/invalid", nil)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NewNotFound("order", map[string]any{"orderID": orderID})
		}
		return nil, apperrors.NewUpstreamFailure("could not load order", err)
	}
	if order.Status != domain.OrderStatusCompleted {
		return nil, apperrors.NewValidationError("order not completed", map[string]any{"status": order.Status})
	}

	resourceKey := order.ResourceKey
	if resourceKey == "" {
		resourceKey, err = s.resolver.Resolve(ctx)
		if err != nil {
			return nil, apperrors.NewUpstreamFailure("could not resolve resource key", err)
		}
	}

	revoked := s.revoke(ctx, order.TokenID)

	record, err := s.Issue(ctx, orderID, resourceKey, ttl, maxUses)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:      events.EventTokenRevoked,
		OrderID:   orderID,
		TokenID:   order.TokenID,
		Timestamp: s.now(),
		Payload:   events.TokenRevokedPayload{ReplacedBy: record.ID, Revoked: revoked},
	})

	s.logger.Info("token reissued",
		zap.String("order_id", orderID),
		zap.Bool("revoked_old", revoked),
		zap.Time("expires_at", record.ExpiresAt),
		zap.Int("max_uses", maxUses))

	return &ReissueResult{
		Token:       record,
		MaxUses:     maxUses,
		RevokedOld:  revoked,
		ResourceKey: resourceKey,
	}, nil
}

// revoke drains the old token's usage state: expiry moved to the past and
// the cap lowered to the current use count, through the same conditional
// replace the redemption path uses. A single attempt; losing the race or a
// missing state both leave the old token to die by its own expiry.
func (s *IssuerService) revoke(ctx context.Context, tokenID string) bool {
	if tokenID == "" {
		return false
	}
	state, err := s.tokens.GetState(ctx, tokenID)
	if err != nil {
		return false
	}
	state.ExpiresAt = s.now().Add(-time.Second)
	state.MaxUses = state.Uses
	if _, err := s.tokens.ReplaceState(ctx, tokenID, state); err != nil {
		return false
	}
	return true
}

func (s *IssuerService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
