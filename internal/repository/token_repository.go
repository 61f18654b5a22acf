package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vanishedbrands/download-service/internal/domain"
	"github.com/vanishedbrands/download-service/internal/storage"
)

// Usage-state metadata keys. The state object itself is zero bytes; the
// counter lives entirely in object metadata so it can be swapped atomically
// with a conditional metadata replace.
const (
	metaUses = "uses"
	metaMax  = "max"
	metaExp  = "exp"
)

// TokenRepository persists the immutable token record and its paired mutable
// usage state under distinct key namespaces sharing the token id.
type TokenRepository interface {
	CreateRecord(ctx context.Context, record *domain.TokenRecord) error
	GetRecord(ctx context.Context, id string) (*domain.TokenRecord, error)
	CreateState(ctx context.Context, id string, maxUses int, expiresAt time.Time) error
	GetState(ctx context.Context, id string) (domain.UsageState, error)
	// ReplaceState writes the new state guarded by state.VersionTag and
	// returns the fresh tag; storage.ErrCASMismatch signals a lost race.
	ReplaceState(ctx context.Context, id string, state domain.UsageState) (string, error)
}

type tokenRepository struct {
	backend     storage.Backend
	prefix      string
	statePrefix string
}

// NewTokenRepository instantiates repository.
func NewTokenRepository(backend storage.Backend, prefix, statePrefix string) TokenRepository {
	return &tokenRepository{backend: backend, prefix: prefix, statePrefix: statePrefix}
}

// tokenBlob is the stored JSON shape; timestamps are epoch milliseconds.
type tokenBlob struct {
	Token     string `json:"token"`
	OrderID   string `json:"orderID"`
	Key       string `json:"key,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (r *tokenRepository) recordKey(id string) string {
	return r.prefix + id + ".json"
}

func (r *tokenRepository) stateKey(id string) string {
	return r.statePrefix + id
}

func (r *tokenRepository) CreateRecord(ctx context.Context, record *domain.TokenRecord) error {
	blob := tokenBlob{
		Token:     record.ID,
		OrderID:   record.OrderID,
		Key:       record.ResourceKey,
		CreatedAt: record.CreatedAt.UnixMilli(),
		ExpiresAt: record.ExpiresAt.UnixMilli(),
	}
	body, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("marshal token record: %w", err)
	}
	return r.backend.Put(ctx, r.recordKey(record.ID), body, storage.PutOptions{
		ContentType: storage.ContentTypeJSON,
	})
}

func (r *tokenRepository) GetRecord(ctx context.Context, id string) (*domain.TokenRecord, error) {
	body, err := r.backend.Get(ctx, r.recordKey(id))
	if err != nil {
		return nil, err
	}
	var blob tokenBlob
	if err := json.Unmarshal(body, &blob); err != nil {
		return nil, fmt.Errorf("unmarshal token record %s: %w", id, err)
	}
	return &domain.TokenRecord{
		ID:          blob.Token,
		OrderID:     blob.OrderID,
		ResourceKey: blob.Key,
		CreatedAt:   time.UnixMilli(blob.CreatedAt),
		ExpiresAt:   time.UnixMilli(blob.ExpiresAt),
	}, nil
}

func (r *tokenRepository) CreateState(ctx context.Context, id string, maxUses int, expiresAt time.Time) error {
	return r.backend.Put(ctx, r.stateKey(id), nil, storage.PutOptions{
		ContentType: storage.ContentTypeOctetStream,
		Metadata:    stateMetadata(0, maxUses, expiresAt),
	})
}

func (r *tokenRepository) GetState(ctx context.Context, id string) (domain.UsageState, error) {
	head, err := r.backend.Head(ctx, r.stateKey(id))
	if err != nil {
		return domain.UsageState{}, err
	}
	return parseState(head), nil
}

func (r *tokenRepository) ReplaceState(ctx context.Context, id string, state domain.UsageState) (string, error) {
	return r.backend.ConditionalReplace(ctx, r.stateKey(id),
		stateMetadata(state.Uses, state.MaxUses, state.ExpiresAt), state.VersionTag)
}

func stateMetadata(uses, maxUses int, expiresAt time.Time) map[string]string {
	exp := ""
	if !expiresAt.IsZero() {
		exp = expiresAt.UTC().Format(time.RFC3339)
	}
	return map[string]string{
		metaUses: strconv.Itoa(uses),
		metaMax:  strconv.Itoa(maxUses),
		metaExp:  exp,
	}
}

func parseState(head storage.HeadResult) domain.UsageState {
	state := domain.UsageState{VersionTag: head.VersionTag}
	if v, err := strconv.Atoi(head.Metadata[metaUses]); err == nil {
		state.Uses = v
	}
	if v, err := strconv.Atoi(head.Metadata[metaMax]); err == nil {
		state.MaxUses = v
	}
	if raw := head.Metadata[metaExp]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			state.ExpiresAt = t
		}
	}
	return state
}
