package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateatletas/payments/internal/domain"
)

var enrollmentRowColumns = []string{"id", "student_id", "product_id", "state", "preference_id", "created_at", "updated_at"}

func newEnrollmentStore(t *testing.T) (*EnrollmentStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	s, err := NewEnrollmentStore(db)
	require.NoError(t, err)
	return s, mock
}

func TestEnrollmentCreateDuplicate(t *testing.T) {
	s, mock := newEnrollmentStore(t)

	mock.ExpectQuery(`INSERT INTO course_enrollments`).
		WithArgs("e1", "s1", "c1", "PreEnrolled", nil).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "course_enrollments_student_product_key"})

	err := s.Create(context.Background(), &domain.Enrollment{ID: "e1", StudentID: "s1", ProductID: "c1", State: domain.EnrollmentPreEnrolled})
	assert.True(t, errors.Is(err, domain.ErrDuplicateEnrollment))
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestEnrollmentFindByStudentAndProduct(t *testing.T) {
	s, mock := newEnrollmentStore(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE student_id = \$1 AND product_id = \$2`).
		WithArgs("s1", "c1").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).AddRow("e1", "s1", "c1", "Active", "pref", now, now))

	e, err := s.FindByStudentAndProduct(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentActive, e.State)
	assert.Equal(t, "pref", *e.PreferenceID)
}

func TestEnrollmentActivate(t *testing.T) {
	s, mock := newEnrollmentStore(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE course_enrollments SET state = 'Active'`).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := s.Activate(context.Background(), "e1")
	require.NoError(t, err)
	assert.True(t, changed)

	mock.ExpectExec(`UPDATE course_enrollments SET state = 'Active'`).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM course_enrollments WHERE id = \$1`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).AddRow("e1", "s1", "c1", "Active", nil, now, now))

	changed, err = s.Activate(context.Background(), "e1")
	require.NoError(t, err)
	assert.False(t, changed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentAttachPreferenceAlreadySet(t *testing.T) {
	s, mock := newEnrollmentStore(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE course_enrollments SET preference_id`).
		WithArgs("e1", "pref-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM course_enrollments WHERE id = \$1`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).AddRow("e1", "s1", "c1", "PreEnrolled", "pref-1", now, now))

	err := s.AttachPreference(context.Background(), "e1", "pref-2")
	assert.True(t, errors.Is(err, domain.ErrPreferenceAlreadySet))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentDeletePreEnrolled(t *testing.T) {
	s, mock := newEnrollmentStore(t)

	mock.ExpectExec(`DELETE FROM course_enrollments WHERE id = \$1 AND state = 'PreEnrolled'`).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := s.DeletePreEnrolled(context.Background(), "e1")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestEnrollmentListByStudents(t *testing.T) {
	s, mock := newEnrollmentStore(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE student_id IN \(\$1, \$2\)`).
		WithArgs("s1", "s2").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).
			AddRow("e2", "s2", "c1", "Active", nil, now, now).
			AddRow("e1", "s1", "c1", "PreEnrolled", nil, now, now))

	list, err := s.ListByStudents(context.Background(), []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	empty, err := s.ListByStudents(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	require.NoError(t, mock.ExpectationsWereMet())
}
