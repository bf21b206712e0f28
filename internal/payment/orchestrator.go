package payment

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/domain"
)

// compensationTimeout bounds the cleanup of a record left by a failed checkout.
const compensationTimeout = 5 * time.Second

// PreferenceBuilder builds provider payloads for checkouts.
type PreferenceBuilder interface {
	Membership(membershipID string, product domain.Product, tutor domain.Tutor) (domain.PreferenceData, error)
	Course(enrollmentID string, product domain.Product, student domain.Student, tutor domain.Tutor) (domain.PreferenceData, error)
}

// MockGenerator synthesizes preferences when the gateway runs in mock mode.
type MockGenerator interface {
	Generate(kind domain.ReferenceKind, entityID string) domain.Preference
}

// OrchestratorDeps are the collaborators of Orchestrator.
type OrchestratorDeps struct {
	Directory   domain.Directory
	Gateway     domain.PaymentGateway
	Builder     PreferenceBuilder
	Mock        MockGenerator
	Memberships *MembershipLifecycle
	Enrollments *EnrollmentLifecycle
	Metrics     *Metrics
	Logger      *zap.Logger
}

// Orchestrator ties catalog and directory lookups, the lifecycles and the
// gateway together. Every record created before a failed gateway call is deleted.
type Orchestrator struct {
	directory   domain.Directory
	gateway     domain.PaymentGateway
	builder     PreferenceBuilder
	mock        MockGenerator
	memberships *MembershipLifecycle
	enrollments *EnrollmentLifecycle
	metrics     *Metrics
	logger      *zap.Logger
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{
		directory:   deps.Directory,
		gateway:     deps.Gateway,
		builder:     deps.Builder,
		mock:        deps.Mock,
		memberships: deps.Memberships,
		enrollments: deps.Enrollments,
		metrics:     deps.Metrics,
		logger:      componentLogger(deps.Logger, "orchestrator"),
	}
}

// RequestMembershipPreference handles the subscription checkout flow:
// 1. Resolves the tutor
// 2. Creates a Pending membership for the chosen (or cheapest) subscription
// 3. Creates a real or mock preference keyed to the membership
// 4. Attaches the preference id, deleting the membership if any step fails
func (o *Orchestrator) RequestMembershipPreference(ctx context.Context, tutorID, productID string) (*domain.Preference, error) {
	tutor, err := o.directory.FindTutor(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	draft, err := o.memberships.Create(ctx, tutorID, productID)
	if err != nil {
		return nil, err
	}
	membershipID := draft.Membership.ID

	pref, err := o.preference(ctx, domain.KindMembership, membershipID, func() (domain.PreferenceData, error) {
		return o.builder.Membership(membershipID, *draft.Product, *tutor)
	})
	if err == nil {
		err = o.memberships.AttachPreference(ctx, membershipID, pref.ID)
	}
	if err != nil {
		o.compensate(ctx, domain.KindMembership, membershipID, o.memberships.Delete, err)
		return nil, err
	}

	o.logger.Info("membership preference created",
		zap.String("membership_id", membershipID),
		zap.String("preference_id", pref.ID),
		zap.Bool("mock", o.gateway.IsMockMode()))
	return pref, nil
}

// RequestCoursePreference is the course counterpart of RequestMembershipPreference.
func (o *Orchestrator) RequestCoursePreference(ctx context.Context, tutorID, studentID, productID string) (*domain.Preference, error) {
	tutor, err := o.directory.FindTutor(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	draft, err := o.enrollments.Create(ctx, tutorID, studentID, productID)
	if err != nil {
		return nil, err
	}
	enrollmentID := draft.Enrollment.ID

	pref, err := o.preference(ctx, domain.KindEnrollment, enrollmentID, func() (domain.PreferenceData, error) {
		return o.builder.Course(enrollmentID, *draft.Product, *draft.Student, *tutor)
	})
	if err == nil {
		err = o.enrollments.AttachPreference(ctx, enrollmentID, pref.ID)
	}
	if err != nil {
		o.compensate(ctx, domain.KindEnrollment, enrollmentID, o.enrollments.Delete, err)
		return nil, err
	}

	o.logger.Info("course preference created",
		zap.String("enrollment_id", enrollmentID),
		zap.String("student_id", studentID),
		zap.String("preference_id", pref.ID),
		zap.Bool("mock", o.gateway.IsMockMode()))
	return pref, nil
}

func (o *Orchestrator) preference(ctx context.Context, kind domain.ReferenceKind, entityID string, build func() (domain.PreferenceData, error)) (*domain.Preference, error) {
	mock := o.gateway.IsMockMode()
	if mock {
		pref := o.mock.Generate(kind, entityID)
		o.metrics.preferenceCreated(string(kind), true)
		return &pref, nil
	}

	data, err := build()
	if err != nil {
		return nil, err
	}
	pref, err := o.gateway.CreatePreference(ctx, data)
	if err != nil {
		return nil, domain.NewPaymentError(err, "failed to create payment preference", "GATEWAY_ERROR")
	}
	o.metrics.preferenceCreated(string(kind), false)
	return pref, nil
}

// compensate deletes the pending record even if the request context is gone.
func (o *Orchestrator) compensate(ctx context.Context, kind domain.ReferenceKind, id string, del func(context.Context, string) error, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	log := o.logger.With(zap.String("kind", string(kind)), zap.String("entity_id", id), zap.NamedError("cause", cause))
	if err := del(ctx, id); err != nil {
		log.Error("compensating delete failed", zap.Error(err))
		return
	}
	log.Warn("checkout failed, pending record removed")
}
