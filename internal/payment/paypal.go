// Package payment wraps the PayPal REST checkout API: order creation,
// capture, and webhook signature verification. The service never trusts
// client-supplied amounts; price and currency always come from configuration.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vanishedbrands/download-service/internal/config"
)

// Gateway is the payment boundary used by the checkout service; faked in
// tests.
type Gateway interface {
	CreateOrder(ctx context.Context) (string, error)
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)
	VerifyWebhookSignature(ctx context.Context, sig WebhookSignature, event json.RawMessage) (bool, error)
}

// CaptureResult is the trimmed view of a capture response.
type CaptureResult struct {
	Status     string
	Amount     string
	Currency   string
	PayerID    string
	PayerEmail string
	CaptureID  string
	OrderRef   OrderRef
	Raw        json.RawMessage
}

// OrderRef keeps the minimal order identifiers for audit rows.
type OrderRef struct {
	ID     string
	Intent string
	Status string
}

// WebhookSignature carries the gateway's transmission headers.
type WebhookSignature struct {
	AuthAlgo         string
	CertURL          string
	TransmissionID   string
	TransmissionSig  string
	TransmissionTime string
}

// Client talks to the PayPal REST API.
type Client struct {
	cfg  config.PaymentConfig
	http *http.Client
}

// NewClient builds a gateway client with a bounded per-call timeout.
func NewClient(cfg config.PaymentConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout()},
	}
}

var _ Gateway = (*Client)(nil)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// accessToken fetches an OAuth token via client credentials.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return "", fmt.Errorf("paypal: missing credentials")
	}
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL()+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: token request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal: token error %d: %s", resp.StatusCode, body)
	}
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("paypal: decode token: %w", err)
	}
	return tok.AccessToken, nil
}

type createOrderRequest struct {
	Intent             string              `json:"intent"`
	PurchaseUnits      []purchaseUnit      `json:"purchase_units"`
	ApplicationContext *applicationContext `json:"application_context,omitempty"`
}

type purchaseUnit struct {
	Amount      amount `json:"amount"`
	Description string `json:"description,omitempty"`
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type applicationContext struct {
	ShippingPreference string `json:"shipping_preference,omitempty"`
	UserAction         string `json:"user_action,omitempty"`
	BrandName          string `json:"brand_name,omitempty"`
}

// CreateOrder creates a gateway order at the configured price and returns
// its id.
func (c *Client) CreateOrder(ctx context.Context) (string, error) {
	access, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}
	payload := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			Amount:      amount{CurrencyCode: c.cfg.Currency, Value: c.cfg.Price},
			Description: c.cfg.Description,
		}},
		ApplicationContext: &applicationContext{
			ShippingPreference: "NO_SHIPPING",
			UserAction:         "PAY_NOW",
			BrandName:          c.cfg.BrandName,
		},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, access, "/v2/checkout/orders", payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

type captureResponse struct {
	ID            string `json:"id"`
	Intent        string `json:"intent"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Amount   *amount `json:"amount"`
		Payments struct {
			Captures []struct {
				ID     string  `json:"id"`
				Status string  `json:"status"`
				Amount *amount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Payer struct {
		PayerID string `json:"payer_id"`
		Email   string `json:"email_address"`
	} `json:"payer"`
}

// CaptureOrder captures the approved order and extracts the fields the
// checkout flow verifies.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	access, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	raw, status, err := c.do(ctx, access, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("paypal: capture failed with status %d: %s", status, truncate(raw, 512))
	}
	var parsed captureResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("paypal: decode capture: %w", err)
	}
	result := &CaptureResult{
		Status:     parsed.Status,
		PayerID:    parsed.Payer.PayerID,
		PayerEmail: parsed.Payer.Email,
		OrderRef:   OrderRef{ID: parsed.ID, Intent: parsed.Intent, Status: parsed.Status},
		Raw:        raw,
	}
	if len(parsed.PurchaseUnits) > 0 {
		unit := parsed.PurchaseUnits[0]
		if len(unit.Payments.Captures) > 0 {
			capture := unit.Payments.Captures[0]
			result.CaptureID = capture.ID
			if result.Status == "" {
				result.Status = capture.Status
			}
			if capture.Amount != nil {
				result.Amount = capture.Amount.Value
				result.Currency = capture.Amount.CurrencyCode
			}
		}
		if result.Amount == "" && unit.Amount != nil {
			result.Amount = unit.Amount.Value
			result.Currency = unit.Amount.CurrencyCode
		}
	}
	if result.Status == "" {
		result.Status = "UNKNOWN"
	}
	return result, nil
}

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

// VerifyWebhookSignature asks the gateway whether the event signature is
// genuine. Nothing in the payload is trusted until this returns true.
func (c *Client) VerifyWebhookSignature(ctx context.Context, sig WebhookSignature, event json.RawMessage) (bool, error) {
	if c.cfg.WebhookID == "" {
		return false, fmt.Errorf("paypal: webhook id not configured")
	}
	access, err := c.accessToken(ctx)
	if err != nil {
		return false, err
	}
	payload := verifyRequest{
		AuthAlgo:         sig.AuthAlgo,
		CertURL:          sig.CertURL,
		TransmissionID:   sig.TransmissionID,
		TransmissionSig:  sig.TransmissionSig,
		TransmissionTime: sig.TransmissionTime,
		WebhookID:        c.cfg.WebhookID,
		WebhookEvent:     event,
	}
	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.postJSON(ctx, access, "/v1/notifications/verify-webhook-signature", payload, &out); err != nil {
		return false, err
	}
	return out.VerificationStatus == "SUCCESS", nil
}

func (c *Client) postJSON(ctx context.Context, access, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	raw, status, err := c.do(ctx, access, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("paypal: %s returned %d: %s", path, status, truncate(raw, 512))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("paypal: decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, access, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL()+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("paypal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// OrderIDFromEvent digs the order id out of a webhook event; it can live in
// several places depending on the event type.
func OrderIDFromEvent(event json.RawMessage) string {
	var parsed struct {
		Resource struct {
			ID                string `json:"id"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(event, &parsed); err != nil {
		return ""
	}
	if parsed.Resource.SupplementaryData.RelatedIDs.OrderID != "" {
		return parsed.Resource.SupplementaryData.RelatedIDs.OrderID
	}
	return parsed.Resource.ID
}

// EventSummary extracts the fields the webhook reconciler records.
func EventSummary(event json.RawMessage) (eventType, resourceID, resourceStatus string) {
	var parsed struct {
		EventType string `json:"event_type"`
		Resource  struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(event, &parsed); err != nil {
		return "", "", ""
	}
	return parsed.EventType, parsed.Resource.ID, parsed.Resource.Status
}
