// Package payment implements the core business logic for payment processing.
// This is the service/use-case layer in Clean Architecture.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/domain"
)

// Lifecycle event types, also used as routing keys.
const (
	EventMembershipActivated = "membership.activated"
	EventMembershipCancelled = "membership.cancelled"
	EventMembershipOverdue   = "membership.overdue"
	EventEnrollmentActivated = "enrollment.activated"
	EventEnrollmentRejected  = "enrollment.rejected"
)

// MembershipDraft is a freshly created Pending membership with its product.
type MembershipDraft struct {
	Membership *domain.Membership
	Product    *domain.Product
}

// MembershipDeps are the collaborators of MembershipLifecycle.
type MembershipDeps struct {
	Memberships domain.MembershipRepository
	Catalog     domain.ProductCatalog
	Gateway     domain.PaymentGateway
	Events      domain.EventPublisher
	Metrics     *Metrics
	Logger      *zap.Logger
	Environment string
}

// MembershipLifecycle owns the membership state machine.
type MembershipLifecycle struct {
	memberships domain.MembershipRepository
	catalog     domain.ProductCatalog
	gateway     domain.PaymentGateway
	events      *eventSink
	metrics     *Metrics
	logger      *zap.Logger
	environment string
	now         func() time.Time
	newID       func() string
}

func NewMembershipLifecycle(deps MembershipDeps) *MembershipLifecycle {
	logger := componentLogger(deps.Logger, "memberships")
	return &MembershipLifecycle{
		memberships: deps.Memberships,
		catalog:     deps.Catalog,
		gateway:     deps.Gateway,
		events:      newEventSink(deps.Events, logger),
		metrics:     deps.Metrics,
		logger:      logger,
		environment: deps.Environment,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Create stores a Pending membership before any gateway call. Without a
// productID the cheapest active subscription is used. A tutor with an Active
// membership cannot start another checkout; the store's partial unique index
// still settles races at activation time.
func (l *MembershipLifecycle) Create(ctx context.Context, tutorID, productID string) (*MembershipDraft, error) {
	if err := l.ensureNoActive(ctx, tutorID); err != nil {
		return nil, err
	}

	product, err := l.subscriptionProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	m := &domain.Membership{
		ID:        l.newID(),
		TutorID:   tutorID,
		ProductID: product.ID,
		State:     domain.MembershipPending,
	}
	if err := l.memberships.Create(ctx, m); err != nil {
		return nil, err
	}

	l.logger.Info("membership created",
		zap.String("membership_id", m.ID),
		zap.String("tutor_id", tutorID),
		zap.String("product_id", product.ID))
	return &MembershipDraft{Membership: m, Product: product}, nil
}

func (l *MembershipLifecycle) ensureNoActive(ctx context.Context, tutorID string) error {
	list, err := l.memberships.ListByTutor(ctx, tutorID)
	if err != nil {
		return err
	}
	for _, m := range list {
		if m.State == domain.MembershipActive {
			return domain.NewPaymentError(domain.ErrActiveMembershipExists,
				fmt.Sprintf("tutor already has active membership '%s'", m.ID), "ACTIVE_MEMBERSHIP_EXISTS")
		}
	}
	return nil
}

func (l *MembershipLifecycle) subscriptionProduct(ctx context.Context, productID string) (*domain.Product, error) {
	if productID == "" {
		products, err := l.catalog.FindSubscriptions(ctx)
		if err != nil {
			return nil, err
		}
		cheapest := cheapestActive(products)
		if cheapest == nil {
			return nil, domain.NewPaymentError(domain.ErrProductNotFound,
				"no subscription products available", "NO_SUBSCRIPTION_PRODUCTS")
		}
		return cheapest, nil
	}

	product, err := l.catalog.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Type != domain.ProductTypeSubscription {
		return nil, domain.NewPaymentError(domain.ErrInvalidProduct,
			fmt.Sprintf("product '%s' is not a subscription", productID), "INVALID_PRODUCT")
	}
	if !product.Active {
		return nil, domain.NewPaymentError(domain.ErrInvalidProduct,
			fmt.Sprintf("product '%s' is not active", productID), "INVALID_PRODUCT")
	}
	return product, nil
}

func cheapestActive(products []domain.Product) *domain.Product {
	var best *domain.Product
	for i := range products {
		p := &products[i]
		if !p.Active || p.Type != domain.ProductTypeSubscription {
			continue
		}
		if best == nil || p.Price.LessThan(best.Price) {
			best = p
		}
	}
	return best
}

// AttachPreference records the preference id once.
func (l *MembershipLifecycle) AttachPreference(ctx context.Context, membershipID, preferenceID string) error {
	_, err := l.memberships.Update(ctx, membershipID, func(m *domain.Membership) (bool, error) {
		return m.AttachPreference(preferenceID)
	})
	return err
}

// Activate moves the membership to Active for durationMonths calendar months.
// Re-activating an Active membership recomputes its dates from now.
func (l *MembershipLifecycle) Activate(ctx context.Context, membershipID string, durationMonths int) (*domain.Membership, error) {
	return l.activate(ctx, membershipID, durationMonths, "")
}

func (l *MembershipLifecycle) activate(ctx context.Context, membershipID string, durationMonths int, paymentID string) (*domain.Membership, error) {
	m, err := l.memberships.Update(ctx, membershipID, func(m *domain.Membership) (bool, error) {
		if err := m.Activate(l.now(), durationMonths); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("membership activated",
		zap.String("membership_id", m.ID),
		zap.String("payment_id", paymentID),
		zap.Timep("next_payment_date", m.NextPaymentDate))
	l.metrics.transition("membership", string(domain.MembershipActive))
	l.events.publish(ctx, EventMembershipActivated, m.ID, m.TutorID, m.ProductID, paymentID)
	return m, nil
}

// ActivateForPayment activates using the duration of the membership's product.
func (l *MembershipLifecycle) ActivateForPayment(ctx context.Context, membershipID, paymentID string) (*domain.Membership, error) {
	m, err := l.memberships.Get(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	return l.activate(ctx, membershipID, l.durationFor(ctx, m.ProductID), paymentID)
}

// ExpectedAmount returns the price of the membership's product.
func (l *MembershipLifecycle) ExpectedAmount(ctx context.Context, membershipID string) (decimal.Decimal, error) {
	m, err := l.memberships.Get(ctx, membershipID)
	if err != nil {
		return decimal.Zero, err
	}
	product, err := l.catalog.FindByID(ctx, m.ProductID)
	if err != nil {
		return decimal.Zero, err
	}
	return product.Price, nil
}

// durationFor falls back to one month when the catalog cannot answer, so an
// approved payment is never lost to a catalog outage.
func (l *MembershipLifecycle) durationFor(ctx context.Context, productID string) int {
	product, err := l.catalog.FindByID(ctx, productID)
	if err != nil {
		l.logger.Warn("product lookup failed, using default duration",
			zap.String("product_id", productID), zap.Error(err))
		return 1
	}
	return product.Duration()
}

// Cancel moves the membership to Cancelled. Cancelling twice is a no-op.
func (l *MembershipLifecycle) Cancel(ctx context.Context, membershipID, paymentID string) (*domain.Membership, error) {
	var changed bool
	m, err := l.memberships.Update(ctx, membershipID, func(m *domain.Membership) (bool, error) {
		changed = m.Cancel()
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return m, nil
	}

	l.logger.Info("membership cancelled", zap.String("membership_id", m.ID), zap.String("payment_id", paymentID))
	l.metrics.transition("membership", string(domain.MembershipCancelled))
	l.events.publish(ctx, EventMembershipCancelled, m.ID, m.TutorID, m.ProductID, paymentID)
	return m, nil
}

// Delete removes a membership as compensation for a failed checkout.
func (l *MembershipLifecycle) Delete(ctx context.Context, membershipID string) error {
	return l.memberships.Delete(ctx, membershipID)
}

// CurrentFor returns the newest Pending, Active or Overdue membership, or nil.
func (l *MembershipLifecycle) CurrentFor(ctx context.Context, tutorID string) (*domain.Membership, error) {
	list, err := l.memberships.ListByTutor(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].State.Open() {
			return &list[i], nil
		}
	}
	return nil, nil
}

// ListForTutor returns every membership of the tutor, newest first.
func (l *MembershipLifecycle) ListForTutor(ctx context.Context, tutorID string) ([]domain.Membership, error) {
	return l.memberships.ListByTutor(ctx, tutorID)
}

// Status reports the tutor's own membership. Memberships of other tutors are
// reported as absent.
func (l *MembershipLifecycle) Status(ctx context.Context, tutorID, membershipID string) (*domain.MembershipStatus, error) {
	m, err := l.memberships.Get(ctx, membershipID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.MembershipStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	if m.TutorID != tutorID {
		return &domain.MembershipStatus{}, nil
	}
	return &domain.MembershipStatus{HasMembership: true, Membership: m}, nil
}

// ManualActivate activates without a payment. A real gateway in production refuses it.
func (l *MembershipLifecycle) ManualActivate(ctx context.Context, tutorID, membershipID string) (*domain.Membership, error) {
	if !domain.ManualActivationAllowed(l.gateway.IsMockMode(), l.environment) {
		l.logger.Warn("manual activation refused",
			zap.String("membership_id", membershipID),
			zap.String("tutor_id", tutorID))
		return nil, domain.NewPaymentError(domain.ErrForbidden,
			"manual activation is only available in mock mode or outside production", "MANUAL_ACTIVATION_FORBIDDEN")
	}

	m, err := l.memberships.Get(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if m.TutorID != tutorID {
		return nil, domain.ErrMembershipNotFound
	}
	return l.activate(ctx, membershipID, l.durationFor(ctx, m.ProductID), "manual")
}

// MarkOverdue flags every Active membership whose next payment date has passed.
func (l *MembershipLifecycle) MarkOverdue(ctx context.Context) (int, error) {
	now := l.now()
	due, err := l.memberships.ListActiveDueBefore(ctx, now)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, candidate := range due {
		var changed bool
		m, err := l.memberships.Update(ctx, candidate.ID, func(m *domain.Membership) (bool, error) {
			changed = m.MarkOverdue(now)
			return changed, nil
		})
		if err != nil {
			l.logger.Error("failed to mark membership overdue", zap.String("membership_id", candidate.ID), zap.Error(err))
			continue
		}
		if !changed {
			continue
		}
		marked++
		l.metrics.transition("membership", string(domain.MembershipOverdue))
		l.events.publish(ctx, EventMembershipOverdue, m.ID, m.TutorID, m.ProductID, "")
	}
	l.metrics.markedOverdue(marked)
	return marked, nil
}
