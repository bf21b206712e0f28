package payment

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/domain"
)

// eventSink publishes lifecycle events best-effort: failures are logged, never returned.
type eventSink struct {
	publisher domain.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func newEventSink(publisher domain.EventPublisher, logger *zap.Logger) *eventSink {
	return &eventSink{publisher: publisher, logger: logger, now: time.Now}
}

func (s *eventSink) publish(ctx context.Context, eventType, entityID, partyID, productID, paymentID string) {
	if s == nil || s.publisher == nil {
		return
	}
	event := domain.LifecycleEvent{
		Type:       eventType,
		EntityID:   entityID,
		PartyID:    partyID,
		ProductID:  productID,
		PaymentID:  paymentID,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish lifecycle event",
			zap.String("type", eventType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

func componentLogger(logger *zap.Logger, name string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.Named(name)
}
