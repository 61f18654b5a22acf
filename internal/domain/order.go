package domain

import "time"

// OrderStatus enumerates gateway-reported purchase outcomes.
type OrderStatus string

const (
	OrderStatusCompleted      OrderStatus = "COMPLETED"
	OrderStatusError          OrderStatus = "ERROR"
	OrderStatusUnknown        OrderStatus = "UNKNOWN"
	OrderStatusAmountMismatch OrderStatus = "AMOUNT_MISMATCH"
	OrderStatusConfigError    OrderStatus = "CONFIG_ERROR"
)

// OrderStage records which step of the capture flow produced a diagnostic
// row; empty for a clean capture.
type OrderStage string

const (
	OrderStageCaptureError    OrderStage = "capture_error"
	OrderStageNotCompleted    OrderStage = "capture_not_completed"
	OrderStageVerifyAmount    OrderStage = "verify_amount"
	OrderStageResolveResource OrderStage = "resolve_resource_key"
)

// Payer keeps the minimum payer identity needed for support lookups.
type Payer struct {
	PayerID string
	Email   string
}

// GatewayRef is the trimmed slice of the gateway's order payload retained for
// audit. Full gateway responses are never persisted.
type GatewayRef struct {
	ID     string
	Intent string
	Status string
}

// Order is the purchase record persisted per gateway order id. Failed capture
// attempts leave diagnostic rows (Stage/Note) so support can reconstruct what
// happened without gateway access.
type Order struct {
	OrderID     string
	Status      OrderStatus
	Stage       OrderStage
	Note        string
	TokenID     string
	Amount      string
	Currency    string
	Payer       *Payer
	CaptureID   string
	ResourceKey string
	Gateway     *GatewayRef
	LastEvent   string
	WebhookSeen time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Completed reports whether the order captured successfully and carries a
// minted token, i.e. a repeat capture call must short-circuit.
func (o *Order) Completed() bool {
	return o != nil && o.Status == OrderStatusCompleted && o.TokenID != ""
}
