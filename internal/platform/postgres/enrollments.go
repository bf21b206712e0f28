package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mateatletas/payments/internal/domain"
)

const enrollmentColumns = `id, student_id, product_id, state, preference_id, created_at, updated_at`

// EnrollmentStore implements domain.EnrollmentRepository.
type EnrollmentStore struct {
	db *sql.DB
}

// NewEnrollmentStore creates an EnrollmentStore using the provided sql.DB connection.
func NewEnrollmentStore(db *sql.DB) (*EnrollmentStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &EnrollmentStore{db: db}, nil
}

func scanEnrollment(row rowScanner) (*domain.Enrollment, error) {
	var (
		e            domain.Enrollment
		state        string
		preferenceID sql.NullString
	)
	if err := row.Scan(&e.ID, &e.StudentID, &e.ProductID, &state, &preferenceID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.State = domain.EnrollmentState(state)
	e.PreferenceID = stringPtr(preferenceID)
	return &e, nil
}

// Create inserts a new enrollment. The (student_id, product_id) constraint
// closes the race left open by any pre-check.
func (s *EnrollmentStore) Create(ctx context.Context, e *domain.Enrollment) error {
	query := `
INSERT INTO course_enrollments (id, student_id, product_id, state, preference_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		e.ID, e.StudentID, e.ProductID, string(e.State), nullString(e.PreferenceID),
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return domain.ErrDuplicateEnrollment
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (s *EnrollmentStore) Get(ctx context.Context, id string) (*domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM course_enrollments WHERE id = $1`
	return s.one(ctx, query, id)
}

func (s *EnrollmentStore) FindByStudentAndProduct(ctx context.Context, studentID, productID string) (*domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM course_enrollments WHERE student_id = $1 AND product_id = $2`
	return s.one(ctx, query, studentID, productID)
}

func (s *EnrollmentStore) one(ctx context.Context, query string, args ...any) (*domain.Enrollment, error) {
	e, err := scanEnrollment(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select enrollment: %w", err)
	}
	return e, nil
}

// AttachPreference sets preference_id only while it is unset.
func (s *EnrollmentStore) AttachPreference(ctx context.Context, id, preferenceID string) error {
	query := `
UPDATE course_enrollments SET preference_id = $2, updated_at = now()
WHERE id = $1 AND (preference_id IS NULL OR preference_id = $2)`

	res, err := s.db.ExecContext(ctx, query, id, preferenceID)
	if err != nil {
		return fmt.Errorf("attach enrollment preference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach enrollment preference: %w", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrPreferenceAlreadySet
}

// Activate is a conditional update, so concurrent deliveries change the row once.
func (s *EnrollmentStore) Activate(ctx context.Context, id string) (bool, error) {
	query := `
UPDATE course_enrollments SET state = 'Active', updated_at = now()
WHERE id = $1 AND state = 'PreEnrolled'`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("activate enrollment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("activate enrollment: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *EnrollmentStore) DeletePreEnrolled(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM course_enrollments WHERE id = $1 AND state = 'PreEnrolled'`, id)
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	return n > 0, nil
}

func (s *EnrollmentStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM course_enrollments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// ListByStudents returns the enrollments of the given students, newest first.
func (s *EnrollmentStore) ListByStudents(ctx context.Context, studentIDs []string) ([]domain.Enrollment, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}

	args := make([]any, len(studentIDs))
	for i, id := range studentIDs {
		args[i] = id
	}
	query := `SELECT ` + enrollmentColumns + ` FROM course_enrollments
WHERE student_id IN (` + placeholders(1, len(studentIDs)) + `)
ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		enrollments = append(enrollments, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return enrollments, nil
}
