package events

import (
	"time"

	"github.com/vanishedbrands/download-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventOrderCaptured EventType = "order_captured"
	EventTokenIssued   EventType = "token_issued"
	EventTokenRedeemed EventType = "token_redeemed"
	EventTokenRevoked  EventType = "token_revoked"
	EventTokenDenied   EventType = "token_denied"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	OrderID   string      `json:"order_id,omitempty"`
	TokenID   string      `json:"token_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// OrderCapturedPayload payload.
type OrderCapturedPayload struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	CaptureID string `json:"capture_id,omitempty"`
}

// TokenIssuedPayload payload.
type TokenIssuedPayload struct {
	ResourceKey string    `json:"resource_key"`
	MaxUses     int       `json:"max_uses"`
	ExpiresAt   time.Time `json:"expires_at"`
	Reissued    bool      `json:"reissued,omitempty"`
}

// TokenRedeemedPayload payload.
type TokenRedeemedPayload struct {
	Uses    int  `json:"uses"`
	MaxUses int  `json:"max_uses"`
	Last    bool `json:"last"`
}

// TokenRevokedPayload payload.
type TokenRevokedPayload struct {
	ReplacedBy string `json:"replaced_by,omitempty"`
	Revoked    bool   `json:"revoked"`
}

// TokenDeniedPayload payload.
type TokenDeniedPayload struct {
	Status domain.TokenStatus `json:"status,omitempty"`
	Reason string             `json:"reason"`
}
