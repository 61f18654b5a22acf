package payment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderIDFromEventPrefersRelatedIDs(t *testing.T) {
	event := json.RawMessage(`{
		"resource": {
			"id": "3C679366HH908993F",
			"supplementary_data": {"related_ids": {"order_id": "5O190127TN364715T"}}
		}
	}`)
	assert.Equal(t, "5O190127TN364715T", OrderIDFromEvent(event))
}

func TestOrderIDFromEventFallsBackToResourceID(t *testing.T) {
	event := json.RawMessage(`{"resource": {"id": "5O190127TN364715T"}}`)
	assert.Equal(t, "5O190127TN364715T", OrderIDFromEvent(event))
}

func TestOrderIDFromEventMalformed(t *testing.T) {
	assert.Equal(t, "", OrderIDFromEvent(json.RawMessage(`not json`)))
	assert.Equal(t, "", OrderIDFromEvent(json.RawMessage(`{}`)))
}

func TestEventSummary(t *testing.T) {
	event := json.RawMessage(`{
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {"id": "3C679366HH908993F", "status": "COMPLETED"}
	}`)
	eventType, resourceID, resourceStatus := EventSummary(event)
	assert.Equal(t, "PAYMENT.CAPTURE.COMPLETED", eventType)
	assert.Equal(t, "3C679366HH908993F", resourceID)
	assert.Equal(t, "COMPLETED", resourceStatus)
}

func TestEventSummaryMalformed(t *testing.T) {
	eventType, resourceID, resourceStatus := EventSummary(json.RawMessage(`[]`))
	assert.Empty(t, eventType)
	assert.Empty(t, resourceID)
	assert.Empty(t, resourceStatus)
}

func TestCaptureResponseParsing(t *testing.T) {
	raw := []byte(`{
		"id": "5O190127TN364715T",
		"intent": "CAPTURE",
		"status": "COMPLETED",
		"purchase_units": [{
			"payments": {"captures": [{
				"id": "3C679366HH908993F",
				"status": "COMPLETED",
				"amount": {"currency_code": "USD", "value": "9.00"}
			}]}
		}],
		"payer": {"payer_id": "QYR5Z8XDVJNXQ", "email_address": "buyer@example.com"}
	}`)
	var parsed captureResponse
	assert.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, "COMPLETED", parsed.Status)
	assert.Equal(t, "3C679366HH908993F", parsed.PurchaseUnits[0].Payments.Captures[0].ID)
	assert.Equal(t, "9.00", parsed.PurchaseUnits[0].Payments.Captures[0].Amount.Value)
	assert.Equal(t, "buyer@example.com", parsed.Payer.Email)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate([]byte("abc"), 5))
	assert.Equal(t, "ab...", truncate([]byte("abcdef"), 2))
}
