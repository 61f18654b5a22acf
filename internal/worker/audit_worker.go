package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/vanishedbrands/download-service/internal/events"
)

// StartAuditWorker subscribes a structured audit log to every token
// lifecycle event. Token ids are shortened so a full credential never lands
// in the logs.
func StartAuditWorker(dispatcher events.Dispatcher, logger *zap.Logger) {
	if dispatcher == nil || logger == nil {
		return
	}
	audit := logger.Named("audit")

	handler := func(_ context.Context, event events.Event) error {
		audit.Info(string(event.Type),
			zap.String("event_id", event.ID),
			zap.String("order_id", event.OrderID),
			zap.String("token", tail(event.TokenID)),
			zap.Time("at", event.Timestamp),
			zap.Any("payload", event.Payload),
		)
		return nil
	}

	for _, eventType := range []events.EventType{
		events.EventOrderCaptured,
		events.EventTokenIssued,
		events.EventTokenRedeemed,
		events.EventTokenRevoked,
		events.EventTokenDenied,
	} {
		dispatcher.Subscribe(eventType, handler)
	}
}

func tail(token string) string {
	if len(token) <= 6 {
		return token
	}
	return "*" + token[len(token)-6:]
}
