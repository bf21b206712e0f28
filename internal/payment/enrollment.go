package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/domain"
)

// EnrollmentDraft is a freshly created PreEnrolled enrollment with its context.
type EnrollmentDraft struct {
	Enrollment *domain.Enrollment
	Product    *domain.Product
	Student    *domain.Student
}

// EnrollmentDeps are the collaborators of EnrollmentLifecycle.
type EnrollmentDeps struct {
	Enrollments domain.EnrollmentRepository
	Catalog     domain.ProductCatalog
	Directory   domain.Directory
	Events      domain.EventPublisher
	Metrics     *Metrics
	Logger      *zap.Logger
}

// EnrollmentLifecycle owns the course enrollment state machine.
type EnrollmentLifecycle struct {
	enrollments domain.EnrollmentRepository
	catalog     domain.ProductCatalog
	directory   domain.Directory
	events      *eventSink
	metrics     *Metrics
	logger      *zap.Logger
	newID       func() string
}

func NewEnrollmentLifecycle(deps EnrollmentDeps) *EnrollmentLifecycle {
	logger := componentLogger(deps.Logger, "enrollments")
	return &EnrollmentLifecycle{
		enrollments: deps.Enrollments,
		catalog:     deps.Catalog,
		directory:   deps.Directory,
		events:      newEventSink(deps.Events, logger),
		metrics:     deps.Metrics,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

// Create stores a PreEnrolled enrollment. The pre-check gives a clean error in
// the common case; the store's unique constraint settles concurrent requests.
func (l *EnrollmentLifecycle) Create(ctx context.Context, tutorID, studentID, productID string) (*EnrollmentDraft, error) {
	product, err := l.catalog.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Type != domain.ProductTypeCourse {
		return nil, domain.NewPaymentError(domain.ErrInvalidProduct,
			fmt.Sprintf("product '%s' is not a course", productID), "INVALID_PRODUCT")
	}

	student, err := l.directory.FindStudent(ctx, studentID, tutorID)
	if err != nil {
		return nil, err
	}

	existing, err := l.enrollments.FindByStudentAndProduct(ctx, studentID, productID)
	switch {
	case err == nil:
		return nil, domain.NewPaymentError(domain.ErrDuplicateEnrollment,
			fmt.Sprintf("student is already enrolled in this course (%s)", existing.State), "DUPLICATE_ENROLLMENT")
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	e := &domain.Enrollment{
		ID:        l.newID(),
		StudentID: studentID,
		ProductID: productID,
		State:     domain.EnrollmentPreEnrolled,
	}
	if err := l.enrollments.Create(ctx, e); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.NewPaymentError(err, "student is already enrolled in this course", "DUPLICATE_ENROLLMENT")
		}
		return nil, err
	}

	l.logger.Info("enrollment created",
		zap.String("enrollment_id", e.ID),
		zap.String("student_id", studentID),
		zap.String("product_id", productID))
	return &EnrollmentDraft{Enrollment: e, Product: product, Student: student}, nil
}

func (l *EnrollmentLifecycle) AttachPreference(ctx context.Context, enrollmentID, preferenceID string) error {
	return l.enrollments.AttachPreference(ctx, enrollmentID, preferenceID)
}

// Activate moves a PreEnrolled enrollment to Active. Activating an Active
// enrollment again changes nothing and is not an error.
func (l *EnrollmentLifecycle) Activate(ctx context.Context, enrollmentID, paymentID string) (bool, error) {
	changed, err := l.enrollments.Activate(ctx, enrollmentID)
	if err != nil || !changed {
		return false, err
	}

	l.logger.Info("enrollment activated", zap.String("enrollment_id", enrollmentID), zap.String("payment_id", paymentID))
	l.metrics.transition("enrollment", string(domain.EnrollmentActive))

	studentID, productID := "", ""
	if e, err := l.enrollments.Get(ctx, enrollmentID); err == nil {
		studentID, productID = e.StudentID, e.ProductID
	}
	l.events.publish(ctx, EventEnrollmentActivated, enrollmentID, studentID, productID, paymentID)
	return true, nil
}

// ExpectedAmount returns the price of the enrollment's course.
func (l *EnrollmentLifecycle) ExpectedAmount(ctx context.Context, enrollmentID string) (decimal.Decimal, error) {
	e, err := l.enrollments.Get(ctx, enrollmentID)
	if err != nil {
		return decimal.Zero, err
	}
	product, err := l.catalog.FindByID(ctx, e.ProductID)
	if err != nil {
		return decimal.Zero, err
	}
	return product.Price, nil
}

// Reject deletes a PreEnrolled enrollment after a failed payment. Missing or
// Active enrollments are left alone.
func (l *EnrollmentLifecycle) Reject(ctx context.Context, enrollmentID, paymentID string) (bool, error) {
	e, err := l.enrollments.Get(ctx, enrollmentID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if e.State != domain.EnrollmentPreEnrolled {
		l.logger.Warn("ignoring rejection for active enrollment",
			zap.String("enrollment_id", enrollmentID), zap.String("payment_id", paymentID))
		return false, nil
	}

	deleted, err := l.enrollments.DeletePreEnrolled(ctx, enrollmentID)
	if err != nil || !deleted {
		return false, err
	}

	l.logger.Info("enrollment removed after rejected payment",
		zap.String("enrollment_id", enrollmentID), zap.String("payment_id", paymentID))
	l.metrics.transition("enrollment", "deleted")
	l.events.publish(ctx, EventEnrollmentRejected, enrollmentID, e.StudentID, e.ProductID, paymentID)
	return true, nil
}

// Delete removes an enrollment as compensation for a failed checkout.
func (l *EnrollmentLifecycle) Delete(ctx context.Context, enrollmentID string) error {
	return l.enrollments.Delete(ctx, enrollmentID)
}

// ListForTutor returns the enrollments of all the tutor's students.
func (l *EnrollmentLifecycle) ListForTutor(ctx context.Context, tutorID string) ([]domain.Enrollment, error) {
	students, err := l.directory.ListStudents(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	return l.enrollments.ListByStudents(ctx, ids)
}
