package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateatletas/payments/internal/domain"
)

func TestEnrollmentCreate(t *testing.T) {
	h := newHarness(t, true)

	draft, err := h.service.enrollments.Create(context.Background(), "tutor-1", "est-1", "curso-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentPreEnrolled, draft.Enrollment.State)
	assert.Equal(t, "Sofía", draft.Student.FirstName)
	assert.Equal(t, "curso-1", draft.Product.ID)
}

func TestEnrollmentCreateValidation(t *testing.T) {
	tests := []struct {
		name      string
		tutorID   string
		studentID string
		productID string
		want      error
	}{
		{name: "subscription product", tutorID: "tutor-1", studentID: "est-1", productID: "prod-subs-1", want: domain.ErrInvalidProduct},
		{name: "unknown product", tutorID: "tutor-1", studentID: "est-1", productID: "nope", want: domain.ErrNotFound},
		{name: "student of another tutor", tutorID: "tutor-1", studentID: "est-2", productID: "curso-1", want: domain.ErrNotFound},
		{name: "unknown student", tutorID: "tutor-1", studentID: "est-9", productID: "curso-1", want: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)
			_, err := h.service.enrollments.Create(context.Background(), tt.tutorID, tt.studentID, tt.productID)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, 0, h.enrollments.Len())
		})
	}
}

func TestEnrollmentDuplicateRejected(t *testing.T) {
	for _, state := range []domain.EnrollmentState{domain.EnrollmentPreEnrolled, domain.EnrollmentActive} {
		t.Run(string(state), func(t *testing.T) {
			h := newHarness(t, true)
			ctx := context.Background()
			h.seedEnrollment(t, "e1", "est-1", "curso-1")
			if state == domain.EnrollmentActive {
				_, err := h.enrollments.Activate(ctx, "e1")
				require.NoError(t, err)
			}

			_, err := h.service.enrollments.Create(ctx, "tutor-1", "est-1", "curso-1")
			assert.True(t, errors.Is(err, domain.ErrConflict))
			assert.Equal(t, 1, h.enrollments.Len())
		})
	}
}

// racyEnrollments hides existing rows from the pre-check to exercise the
// constraint path.
type racyEnrollments struct {
	domain.EnrollmentRepository
}

func (racyEnrollments) FindByStudentAndProduct(context.Context, string, string) (*domain.Enrollment, error) {
	return nil, domain.ErrEnrollmentNotFound
}

func TestEnrollmentDuplicateCaughtByConstraint(t *testing.T) {
	h := newHarness(t, true)
	h.seedEnrollment(t, "e1", "est-1", "curso-1")
	h.service.enrollments.enrollments = racyEnrollments{h.enrollments}

	_, err := h.service.enrollments.Create(context.Background(), "tutor-1", "est-1", "curso-1")
	assert.True(t, errors.Is(err, domain.ErrDuplicateEnrollment))
	assert.Equal(t, 1, h.enrollments.Len())
}

func TestEnrollmentActivateAndReject(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.seedEnrollment(t, "e1", "est-1", "curso-1")
	h.seedEnrollment(t, "e2", "est-1", "curso-2")

	changed, err := h.service.enrollments.Activate(ctx, "e1", "pay-1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = h.service.enrollments.Activate(ctx, "e1", "pay-1")
	require.NoError(t, err)
	assert.False(t, changed)

	removed, err := h.service.enrollments.Reject(ctx, "e1", "pay-2")
	require.NoError(t, err)
	assert.False(t, removed, "active enrollments survive a late rejection")

	removed, err = h.service.enrollments.Reject(ctx, "e2", "pay-3")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = h.service.enrollments.Reject(ctx, "e2", "pay-3")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, []string{EventEnrollmentActivated, EventEnrollmentRejected}, h.events.types())
}

func TestListEnrollmentsJoinsThroughStudents(t *testing.T) {
	h := newHarness(t, true)
	h.seedEnrollment(t, "e1", "est-1", "curso-1")
	h.seedEnrollment(t, "e2", "est-2", "curso-1")

	list, err := h.service.ListEnrollments(context.Background(), "tutor-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "e1", list[0].ID)
}
