package service

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vanishedbrands/download-service/internal/config"
	"github.com/vanishedbrands/download-service/internal/domain"
	"github.com/vanishedbrands/download-service/internal/events"
	"github.com/vanishedbrands/download-service/internal/observability"
	"github.com/vanishedbrands/download-service/internal/repository"
	"github.com/vanishedbrands/download-service/internal/storage"
	apperrors "github.com/vanishedbrands/download-service/pkg/util"
)

// RedemptionService validates tokens and consumes uses. The usage counter is
// shared by every concurrent redemption of the same token and is protected
// solely by the store's conditional replace: read the current version tag,
// write the incremented state guarded by it, and on a lost race re-read and
// retry a bounded number of times. There is no other locking layer.
type RedemptionService struct {
	tokens     repository.TokenRepository
	resolver   *repository.ResourceResolver
	signer     storage.URLSigner
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.DownloadConfig

	now   func() time.Time
	sleep func(time.Duration)
}

// RedemptionDependencies bundles collaborators for the redemption service.
type RedemptionDependencies struct {
	TokenRepo  repository.TokenRepository
	Resolver   *repository.ResourceResolver
	Signer     storage.URLSigner
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewRedemptionService constructs the service.
func NewRedemptionService(cfg config.DownloadConfig, deps RedemptionDependencies) *RedemptionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CASMaxRetries <= 0 {
		cfg.CASMaxRetries = 5
	}
	return &RedemptionService{
		tokens:     deps.TokenRepo,
		resolver:   deps.Resolver,
		signer:     deps.Signer,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// RedeemResult is a granted redemption: the signed URL plus the
// post-increment usage snapshot for client display.
type RedeemResult struct {
	URL      string
	Snapshot domain.UsageSnapshot
}

// Redeem validates the token, atomically consumes one use and returns a
// short-lived signed URL for the underlying resource.
func (s *RedemptionService) Redeem(ctx context.Context, tokenID string) (*RedeemResult, error) {
	record, state, err := s.load(ctx, tokenID)
	if err != nil {
		s.recordOutcome("not_found")
		return nil, err
	}

	for attempt := 0; attempt < s.cfg.CASMaxRetries; attempt++ {
		if denied := s.checkState(ctx, record, state); denied != nil {
			return nil, denied
		}

		updated := state
		updated.Uses++
		if _, err := s.tokens.ReplaceState(ctx, tokenID, updated); err != nil {
			if errors.Is(err, storage.ErrCASMismatch) {
				// Another redemption advanced the counter first. Re-read and
				// re-validate from the fresh state.
				s.metrics.RecordCASConflict()
				state, err = s.tokens.GetState(ctx, tokenID)
				if err != nil {
					s.recordOutcome("not_found")
					return nil, s.mapStateError(err, tokenID)
				}
				s.backoff()
				continue
			}
			s.recordOutcome("error")
			return nil, apperrors.NewUpstreamFailure("could not update usage state", err)
		}

		return s.grant(ctx, record, updated)
	}

	s.recordOutcome("conflict")
	return nil, apperrors.NewConflict("please try the download again", nil)
}

// Peek returns the current usage snapshot without consuming a use. It shares
// the validation path with Redeem so expiry and limit semantics cannot
// diverge, but reports rather than denies.
func (s *RedemptionService) Peek(ctx context.Context, tokenID string) (domain.UsageSnapshot, error) {
	record, state, err := s.load(ctx, tokenID)
	if err != nil {
		return domain.UsageSnapshot{}, err
	}
	snapshot := state.Snapshot(s.now(), s.cfg.GracePeriod)
	if snapshot.ExpiresAt.IsZero() {
		snapshot.ExpiresAt = record.ExpiresAt
	}
	return snapshot, nil
}

// load performs steps shared by redeem and peek: id format gate, token
// record lookup, usage-state lookup. A record without state is a partial
// issuance and denies exactly like a missing token; fabricating default
// state here would resurrect a half-issued token with false capacity.
func (s *RedemptionService) load(ctx context.Context, tokenID string) (*domain.TokenRecord, domain.UsageState, error) {
	if !domain.IsValidTokenID(tokenID) {
		return nil, domain.UsageState{}, apperrors.NewValidationError("invalid token format", nil)
	}

	record, err := s.tokens.GetRecord(ctx, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.UsageState{}, apperrors.NewNotFound("token", nil)
		}
		return nil, domain.UsageState{}, apperrors.NewUpstreamFailure("could not load token", err)
	}

	state, err := s.tokens.GetState(ctx, tokenID)
	if err != nil {
		return nil, domain.UsageState{}, s.mapStateError(err, tokenID)
	}
	// The state record duplicates expiry for single-read validation; fall
	// back to the token record when it was written without one.
	if state.ExpiresAt.IsZero() {
		state.ExpiresAt = record.ExpiresAt
	}
	return record, state, nil
}

func (s *RedemptionService) mapStateError(err error, tokenID string) error {
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("token record without usage state",
			zap.String("token", tail(tokenID)))
		return apperrors.NewNotFound("token", nil)
	}
	return apperrors.NewUpstreamFailure("could not load usage state", err)
}

// checkState applies the expiry and cap validations; both deny without any
// mutating store call.
func (s *RedemptionService) checkState(ctx context.Context, record *domain.TokenRecord, state domain.UsageState) error {
	now := s.now()
	if state.ExpiredAt(now, s.cfg.GracePeriod) {
		s.recordOutcome("expired")
		s.deny(ctx, record, domain.TokenStatusExpired, "token expired")
		return apperrors.NewExpired("this download link has expired", map[string]any{
			"uses":      state.Uses,
			"maxUses":   state.MaxUses,
			"remaining": 0,
			"expiresAt": state.ExpiresAt,
		})
	}
	if state.Remaining() <= 0 {
		s.recordOutcome("limit_reached")
		s.deny(ctx, record, domain.TokenStatusExhausted, "download limit reached")
		return apperrors.NewLimitReached("download limit reached", map[string]any{
			"uses":      state.Uses,
			"maxUses":   state.MaxUses,
			"remaining": 0,
		})
	}
	return nil
}

// grant resolves the resource, signs a bounded URL and reports the
// post-increment snapshot.
func (s *RedemptionService) grant(ctx context.Context, record *domain.TokenRecord, state domain.UsageState) (*RedeemResult, error) {
	resourceKey := record.ResourceKey
	if resourceKey == "" {
		var err error
		resourceKey, err = s.resolver.Resolve(ctx)
		if err != nil {
			s.recordOutcome("error")
			return nil, apperrors.NewUpstreamFailure("resource not configured", err)
		}
	}

	url, err := s.signer.SignURL(ctx, storage.SignRequest{
		Key:         resourceKey,
		Filename:    s.cfg.Filename,
		ContentType: storage.ContentTypeCSV,
		TTL:         s.cfg.SignedURLTTL,
	})
	if err != nil {
		s.recordOutcome("error")
		return nil, apperrors.NewUpstreamFailure("could not sign download url", err)
	}

	snapshot := state.Snapshot(s.now(), s.cfg.GracePeriod)
	snapshot.Last = state.Uses >= state.MaxUses

	s.recordOutcome("granted")
	s.publish(ctx, events.Event{
		Type:      events.EventTokenRedeemed,
		OrderID:   record.OrderID,
		TokenID:   record.ID,
		Timestamp: s.now(),
		Payload: events.TokenRedeemedPayload{
			Uses:    state.Uses,
			MaxUses: state.MaxUses,
			Last:    snapshot.Last,
		},
	})
	return &RedeemResult{URL: url, Snapshot: snapshot}, nil
}

// backoff sleeps a randomized interval before the next CAS attempt so
// colliding redeemers fan out instead of re-colliding.
func (s *RedemptionService) backoff() {
	base := s.cfg.CASBackoffBase
	if base <= 0 {
		base = 40 * time.Millisecond
	}
	jitter := s.cfg.CASBackoffJitter
	if jitter <= 0 {
		jitter = 140 * time.Millisecond
	}
	s.sleep(base + time.Duration(rand.Int63n(int64(jitter))))
}

func (s *RedemptionService) deny(ctx context.Context, record *domain.TokenRecord, status domain.TokenStatus, reason string) {
	s.publish(ctx, events.Event{
		Type:      events.EventTokenDenied,
		OrderID:   record.OrderID,
		TokenID:   record.ID,
		Timestamp: s.now(),
		Payload:   events.TokenDeniedPayload{Status: status, Reason: reason},
	})
}

func (s *RedemptionService) recordOutcome(outcome string) {
	s.metrics.RecordRedemption(outcome)
}

func (s *RedemptionService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func tail(token string) string {
	if len(token) <= 6 {
		return token
	}
	return "*" + token[len(token)-6:]
}
