package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mateatletas/payments/internal/domain"
)

const activeMembershipIndex = "memberships_one_active_per_tutor"

const membershipColumns = `id, tutor_id, product_id, state, start_date, next_payment_date, preference_id, created_at, updated_at`

// MembershipStore implements domain.MembershipRepository.
type MembershipStore struct {
	db *sql.DB
}

// NewMembershipStore creates a MembershipStore using the provided sql.DB connection.
func NewMembershipStore(db *sql.DB) (*MembershipStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &MembershipStore{db: db}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (*domain.Membership, error) {
	var (
		m            domain.Membership
		state        string
		start, next  sql.NullTime
		preferenceID sql.NullString
	)
	if err := row.Scan(&m.ID, &m.TutorID, &m.ProductID, &state, &start, &next, &preferenceID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.State = domain.MembershipState(state)
	m.StartDate = timePtr(start)
	m.NextPaymentDate = timePtr(next)
	m.PreferenceID = stringPtr(preferenceID)
	return &m, nil
}

// Create inserts a new membership; the storage layer stamps the audit columns.
func (s *MembershipStore) Create(ctx context.Context, m *domain.Membership) error {
	query := `
INSERT INTO memberships (id, tutor_id, product_id, state, start_date, next_payment_date, preference_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		m.ID, m.TutorID, m.ProductID, string(m.State),
		nullTime(m.StartDate), nullTime(m.NextPaymentDate), nullString(m.PreferenceID),
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, activeMembershipIndex) {
			return domain.ErrActiveMembershipExists
		}
		if isUniqueViolation(err, "") {
			return fmt.Errorf("insert membership %s: %w", m.ID, domain.ErrConflict)
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// Get returns a membership by id.
func (s *MembershipStore) Get(ctx context.Context, id string) (*domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE id = $1`

	m, err := scanMembership(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select membership: %w", err)
	}
	return m, nil
}

// Update serializes transitions per membership with a row lock.
func (s *MembershipStore) Update(ctx context.Context, id string, fn domain.MembershipMutator) (*domain.Membership, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE id = $1 FOR UPDATE`
	m, err := scanMembership(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock membership: %w", err)
	}

	changed, err := fn(m)
	if err != nil {
		return nil, err
	}
	if !changed {
		return m, tx.Commit()
	}

	update := `
UPDATE memberships
SET state = $2, start_date = $3, next_payment_date = $4, preference_id = $5, updated_at = now()
WHERE id = $1
RETURNING updated_at`

	err = tx.QueryRowContext(ctx, update,
		m.ID, string(m.State), nullTime(m.StartDate), nullTime(m.NextPaymentDate), nullString(m.PreferenceID),
	).Scan(&m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, activeMembershipIndex) {
			return nil, domain.ErrActiveMembershipExists
		}
		return nil, fmt.Errorf("update membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit membership update: %w", err)
	}
	return m, nil
}

// Delete removes a membership. Missing rows are ignored.
func (s *MembershipStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memberships WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

// ListByTutor returns a tutor's memberships, newest first.
func (s *MembershipStore) ListByTutor(ctx context.Context, tutorID string) ([]domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE tutor_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, tutorID)
}

// ListActiveDueBefore returns Active memberships whose next payment date is before t.
func (s *MembershipStore) ListActiveDueBefore(ctx context.Context, t time.Time) ([]domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships
WHERE state = 'Active' AND next_payment_date < $1
ORDER BY next_payment_date`
	return s.list(ctx, query, t)
}

func (s *MembershipStore) list(ctx context.Context, query string, args ...any) ([]domain.Membership, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	var memberships []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return memberships, nil
}
