package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vanishedbrands/download-service/internal/domain"
	"github.com/vanishedbrands/download-service/internal/storage"
)

// OrderRepository persists purchase records keyed by gateway order id.
type OrderRepository interface {
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	Save(ctx context.Context, order *domain.Order) error
}

type orderRepository struct {
	backend storage.Backend
	prefix  string
}

// NewOrderRepository instantiates repository.
func NewOrderRepository(backend storage.Backend, prefix string) OrderRepository {
	return &orderRepository{backend: backend, prefix: prefix}
}

type payerBlob struct {
	PayerID string `json:"payer_id,omitempty"`
	Email   string `json:"email,omitempty"`
}

type gatewayBlob struct {
	ID     string `json:"id,omitempty"`
	Intent string `json:"intent,omitempty"`
	Status string `json:"status,omitempty"`
}

// orderBlob is the stored JSON shape; timestamps are epoch milliseconds.
// Only a trimmed slice of the gateway payload is kept, never the full
// response.
type orderBlob struct {
	OrderID     string       `json:"orderID"`
	Status      string       `json:"status,omitempty"`
	Stage       string       `json:"stage,omitempty"`
	Note        string       `json:"note,omitempty"`
	Token       string       `json:"token,omitempty"`
	Amount      string       `json:"amount,omitempty"`
	Currency    string       `json:"currency,omitempty"`
	Payer       *payerBlob   `json:"payer,omitempty"`
	CaptureID   string       `json:"captureId,omitempty"`
	ResourceKey string       `json:"csvKey,omitempty"`
	Raw         *gatewayBlob `json:"raw,omitempty"`
	LastEvent   string       `json:"lastEvent,omitempty"`
	WebhookSeen int64        `json:"webhookSeen,omitempty"`
	CreatedAt   int64        `json:"createdAt,omitempty"`
	UpdatedAt   int64        `json:"updatedAt,omitempty"`
}

func (r *orderRepository) key(orderID string) string {
	return r.prefix + orderID + ".json"
}

func (r *orderRepository) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	body, err := r.backend.Get(ctx, r.key(orderID))
	if err != nil {
		return nil, err
	}
	var blob orderBlob
	if err := json.Unmarshal(body, &blob); err != nil {
		return nil, fmt.Errorf("unmarshal order %s: %w", orderID, err)
	}
	order := &domain.Order{
		OrderID:     blob.OrderID,
		Status:      domain.OrderStatus(blob.Status),
		Stage:       domain.OrderStage(blob.Stage),
		Note:        blob.Note,
		TokenID:     blob.Token,
		Amount:      blob.Amount,
		Currency:    blob.Currency,
		CaptureID:   blob.CaptureID,
		ResourceKey: blob.ResourceKey,
		LastEvent:   blob.LastEvent,
	}
	if blob.Payer != nil {
		order.Payer = &domain.Payer{PayerID: blob.Payer.PayerID, Email: blob.Payer.Email}
	}
	if blob.Raw != nil {
		order.Gateway = &domain.GatewayRef{ID: blob.Raw.ID, Intent: blob.Raw.Intent, Status: blob.Raw.Status}
	}
	if blob.WebhookSeen > 0 {
		order.WebhookSeen = time.UnixMilli(blob.WebhookSeen)
	}
	if blob.CreatedAt > 0 {
		order.CreatedAt = time.UnixMilli(blob.CreatedAt)
	}
	if blob.UpdatedAt > 0 {
		order.UpdatedAt = time.UnixMilli(blob.UpdatedAt)
	}
	return order, nil
}

func (r *orderRepository) Save(ctx context.Context, order *domain.Order) error {
	blob := orderBlob{
		OrderID:     order.OrderID,
		Status:      string(order.Status),
		Stage:       string(order.Stage),
		Note:        order.Note,
		Token:       order.TokenID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		CaptureID:   order.CaptureID,
		ResourceKey: order.ResourceKey,
		LastEvent:   order.LastEvent,
	}
	if order.Payer != nil {
		blob.Payer = &payerBlob{PayerID: order.Payer.PayerID, Email: order.Payer.Email}
	}
	if order.Gateway != nil {
		blob.Raw = &gatewayBlob{ID: order.Gateway.ID, Intent: order.Gateway.Intent, Status: order.Gateway.Status}
	}
	if !order.WebhookSeen.IsZero() {
		blob.WebhookSeen = order.WebhookSeen.UnixMilli()
	}
	if !order.CreatedAt.IsZero() {
		blob.CreatedAt = order.CreatedAt.UnixMilli()
	}
	if !order.UpdatedAt.IsZero() {
		blob.UpdatedAt = order.UpdatedAt.UnixMilli()
	}
	body, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", order.OrderID, err)
	}
	return r.backend.Put(ctx, r.key(order.OrderID), body, storage.PutOptions{
		ContentType: storage.ContentTypeJSON,
	})
}
