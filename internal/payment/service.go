package payment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/domain"
)

// Service is the operation surface used by the transport layer.
type Service struct {
	orchestrator *Orchestrator
	memberships  *MembershipLifecycle
	enrollments  *EnrollmentLifecycle
	dispatcher   *Dispatcher
	catalog      domain.ProductCatalog
	logger       *zap.Logger
}

// Deps are the infrastructure collaborators of the payment service.
type Deps struct {
	Memberships  domain.MembershipRepository
	Enrollments  domain.EnrollmentRepository
	Catalog      domain.ProductCatalog
	Directory    domain.Directory
	Gateway      domain.PaymentGateway
	Builder      PreferenceBuilder
	Mock         MockGenerator
	Events       domain.EventPublisher
	Deduplicator domain.WebhookDeduplicator
	Metrics      *Metrics
	Logger       *zap.Logger
	Environment  string
}

// NewService wires the lifecycles, the dispatcher and the orchestrator.
func NewService(deps Deps) *Service {
	memberships := NewMembershipLifecycle(MembershipDeps{
		Memberships: deps.Memberships,
		Catalog:     deps.Catalog,
		Gateway:     deps.Gateway,
		Events:      deps.Events,
		Metrics:     deps.Metrics,
		Logger:      deps.Logger,
		Environment: deps.Environment,
	})
	enrollments := NewEnrollmentLifecycle(EnrollmentDeps{
		Enrollments: deps.Enrollments,
		Catalog:     deps.Catalog,
		Directory:   deps.Directory,
		Events:      deps.Events,
		Metrics:     deps.Metrics,
		Logger:      deps.Logger,
	})

	return &Service{
		orchestrator: NewOrchestrator(OrchestratorDeps{
			Directory:   deps.Directory,
			Gateway:     deps.Gateway,
			Builder:     deps.Builder,
			Mock:        deps.Mock,
			Memberships: memberships,
			Enrollments: enrollments,
			Metrics:     deps.Metrics,
			Logger:      deps.Logger,
		}),
		memberships: memberships,
		enrollments: enrollments,
		dispatcher: NewDispatcher(DispatcherDeps{
			Gateway:      deps.Gateway,
			Memberships:  memberships,
			Enrollments:  enrollments,
			Deduplicator: deps.Deduplicator,
			Metrics:      deps.Metrics,
			Logger:       deps.Logger,
			Environment:  deps.Environment,
		}),
		catalog: deps.Catalog,
		logger:  componentLogger(deps.Logger, "payments"),
	}
}

// Memberships exposes the membership lifecycle for background jobs.
func (s *Service) Memberships() *MembershipLifecycle {
	return s.memberships
}

func (s *Service) CreateMembershipPreference(ctx context.Context, tutorID, productID string) (*domain.Preference, error) {
	return s.orchestrator.RequestMembershipPreference(ctx, tutorID, productID)
}

func (s *Service) CreateCoursePreference(ctx context.Context, tutorID, studentID, productID string) (*domain.Preference, error) {
	return s.orchestrator.RequestCoursePreference(ctx, tutorID, studentID, productID)
}

// GetCurrentMembership returns nil without error when the tutor has none.
func (s *Service) GetCurrentMembership(ctx context.Context, tutorID string) (*domain.Membership, error) {
	return s.memberships.CurrentFor(ctx, tutorID)
}

func (s *Service) GetMembershipStatus(ctx context.Context, tutorID, membershipID string) (*domain.MembershipStatus, error) {
	return s.memberships.Status(ctx, tutorID, membershipID)
}

func (s *Service) ListEnrollments(ctx context.Context, tutorID string) ([]domain.Enrollment, error) {
	return s.enrollments.ListForTutor(ctx, tutorID)
}

func (s *Service) HandleWebhook(ctx context.Context, n domain.WebhookNotification) (*domain.WebhookAck, error) {
	return s.dispatcher.Handle(ctx, n)
}

func (s *Service) ManualActivateMembership(ctx context.Context, tutorID, membershipID string) (*domain.Membership, error) {
	m, err := s.memberships.ManualActivate(ctx, tutorID, membershipID)
	if err != nil && !errors.Is(err, domain.ErrForbidden) {
		s.logger.Warn("manual activation failed",
			zap.String("membership_id", membershipID), zap.Error(err))
	}
	return m, err
}

// MockMode reports whether checkouts are synthesized locally.
func (s *Service) MockMode() bool {
	return s.orchestrator.gateway.IsMockMode()
}
