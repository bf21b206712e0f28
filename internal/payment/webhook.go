package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/domain"
)

// DedupTTL is how long a processed (payment, status) pair is remembered.
const DedupTTL = 7 * 24 * time.Hour

const notificationTypePayment = "payment"

// DispatcherDeps are the collaborators of Dispatcher.
type DispatcherDeps struct {
	Gateway      domain.PaymentGateway
	Memberships  *MembershipLifecycle
	Enrollments  *EnrollmentLifecycle
	Deduplicator domain.WebhookDeduplicator
	Metrics      *Metrics
	Logger       *zap.Logger
	Environment  string
}

// Dispatcher routes gateway notifications to the owning lifecycle.
type Dispatcher struct {
	gateway      domain.PaymentGateway
	memberships  *MembershipLifecycle
	enrollments  *EnrollmentLifecycle
	deduplicator domain.WebhookDeduplicator
	metrics      *Metrics
	logger       *zap.Logger
	environment  string
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	return &Dispatcher{
		gateway:      deps.Gateway,
		memberships:  deps.Memberships,
		enrollments:  deps.Enrollments,
		deduplicator: deps.Deduplicator,
		metrics:      deps.Metrics,
		logger:       componentLogger(deps.Logger, "webhooks"),
		environment:  deps.Environment,
	}
}

func dedupKey(paymentID, status string) string {
	return paymentID + ":" + status
}

// Handle processes one notification. Business problems (unknown references,
// missing entities, pending payments) are acknowledged; only failures to reach
// the gateway or the store are returned.
func (d *Dispatcher) Handle(ctx context.Context, n domain.WebhookNotification) (*domain.WebhookAck, error) {
	ack, err := d.handle(ctx, n)
	if err != nil {
		d.metrics.webhook("error")
		return nil, err
	}
	d.metrics.webhook(string(ack.Status))
	return ack, nil
}

func (d *Dispatcher) handle(ctx context.Context, n domain.WebhookNotification) (*domain.WebhookAck, error) {
	if d.gateway.IsMockMode() {
		d.logger.Debug("mock mode, ignoring webhook", zap.String("type", n.Type))
		return ignored("mock mode", n), nil
	}

	if n.Type != notificationTypePayment {
		d.logger.Info("ignoring webhook type", zap.String("type", n.Type), zap.String("action", n.Action))
		return ignored("unsupported notification type", n), nil
	}

	if !domain.LiveNotificationAccepted(n.LiveMode, d.environment) {
		d.logger.Warn("test notification in production",
			zap.String("payment_id", n.DataID),
			zap.Bool("live_mode_present", n.LiveMode != nil))
		return ignored("test notification", n), nil
	}

	paymentID := strings.TrimSpace(n.DataID)
	if paymentID == "" {
		d.logger.Warn("webhook without payment id", zap.Error(domain.ErrMalformedWebhook))
		return ignored("missing payment id", n), nil
	}

	info, err := d.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedWebhook) {
			d.logger.Warn("unusable payment id", zap.String("payment_id", paymentID), zap.Error(err))
			return ignored("invalid payment id", n), nil
		}
		return nil, err
	}

	log := d.logger.With(
		zap.String("payment_id", paymentID),
		zap.String("status", info.Status),
		zap.String("external_reference", info.ExternalReference))

	key := dedupKey(paymentID, info.Status)
	if d.seen(ctx, key) {
		log.Info("duplicate webhook delivery")
		return &domain.WebhookAck{Status: domain.AckDuplicate, Message: "already processed", PaymentID: paymentID, Action: n.Action}, nil
	}

	ref, err := domain.ParseExternalReference(info.ExternalReference)
	if err != nil {
		log.Warn("unrecognized external reference", zap.Error(err))
		return ignored("unrecognized external reference", n), nil
	}

	var terminal bool
	switch info.Status {
	case domain.PaymentApproved:
		terminal = true
		if err = d.checkAmount(ctx, ref, info); err == nil {
			err = d.approve(ctx, ref, paymentID)
		}
	case domain.PaymentRejected, domain.PaymentCancelled:
		terminal = true
		err = d.reject(ctx, ref, paymentID)
	default:
		log.Info("payment still pending, no state change")
		return &domain.WebhookAck{Status: domain.AckProcessed, Message: "payment pending", PaymentID: paymentID, Action: n.Action}, nil
	}

	switch {
	case errors.Is(err, domain.ErrAmountMismatch):
		log.Warn("approved amount does not match price", zap.Error(err))
		d.mark(ctx, key)
		return ignored("amount mismatch", n), nil
	case errors.Is(err, domain.ErrNotFound):
		log.Warn("referenced entity not found", zap.Error(err))
		return ignored("entity not found", n), nil
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict):
		log.Warn("transition refused", zap.Error(err))
		d.mark(ctx, key)
		return ignored("transition refused", n), nil
	case err != nil:
		return nil, err
	}

	if terminal {
		d.mark(ctx, key)
	}
	log.Info("webhook processed", zap.String("kind", string(ref.Kind)), zap.String("entity_id", ref.EntityID))
	return &domain.WebhookAck{Status: domain.AckProcessed, Message: "processed", PaymentID: paymentID, Action: n.Action}, nil
}

// checkAmount refuses approvals whose paid amount differs from the price.
func (d *Dispatcher) checkAmount(ctx context.Context, ref domain.ExternalReference, info *domain.PaymentInfo) error {
	var (
		expected decimal.Decimal
		err      error
	)
	switch ref.Kind {
	case domain.KindMembership:
		expected, err = d.memberships.ExpectedAmount(ctx, ref.EntityID)
	default:
		expected, err = d.enrollments.ExpectedAmount(ctx, ref.EntityID)
	}
	if err != nil {
		return err
	}
	if !domain.AmountMatches(expected, info.Amount) {
		return fmt.Errorf("%w: expected %s, received %s %s",
			domain.ErrAmountMismatch, expected.StringFixed(2), info.Amount.StringFixed(2), info.Currency)
	}
	return nil
}

func (d *Dispatcher) approve(ctx context.Context, ref domain.ExternalReference, paymentID string) error {
	switch ref.Kind {
	case domain.KindMembership:
		_, err := d.memberships.ActivateForPayment(ctx, ref.EntityID, paymentID)
		return err
	default:
		_, err := d.enrollments.Activate(ctx, ref.EntityID, paymentID)
		return err
	}
}

func (d *Dispatcher) reject(ctx context.Context, ref domain.ExternalReference, paymentID string) error {
	switch ref.Kind {
	case domain.KindMembership:
		_, err := d.memberships.Cancel(ctx, ref.EntityID, paymentID)
		return err
	default:
		_, err := d.enrollments.Reject(ctx, ref.EntityID, paymentID)
		return err
	}
}

// seen treats a broken idempotency store as "not seen"; transitions are safe to repeat.
func (d *Dispatcher) seen(ctx context.Context, key string) bool {
	if d.deduplicator == nil {
		return false
	}
	ok, err := d.deduplicator.Seen(ctx, key)
	if err != nil {
		d.logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (d *Dispatcher) mark(ctx context.Context, key string) {
	if d.deduplicator == nil {
		return
	}
	if err := d.deduplicator.Mark(ctx, key, DedupTTL); err != nil {
		d.logger.Warn("failed to record idempotency marker", zap.String("key", key), zap.Error(err))
	}
}

func ignored(message string, n domain.WebhookNotification) *domain.WebhookAck {
	return &domain.WebhookAck{Status: domain.AckIgnored, Message: message, PaymentID: n.DataID, Action: n.Action}
}
