package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mateatletas/payments/internal/domain"
)

// EnrollmentStore implements domain.EnrollmentRepository on a map and enforces
// the (student, product) uniqueness at insert time.
type EnrollmentStore struct {
	mu    sync.Mutex
	items map[string]domain.Enrollment
	now   func() time.Time
}

func NewEnrollmentStore() *EnrollmentStore {
	return &EnrollmentStore{items: make(map[string]domain.Enrollment), now: time.Now}
}

func (s *EnrollmentStore) Create(_ context.Context, e *domain.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[e.ID]; ok {
		return domain.ErrConflict
	}
	for _, existing := range s.items {
		if existing.StudentID == e.StudentID && existing.ProductID == e.ProductID {
			return domain.ErrDuplicateEnrollment
		}
	}

	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now
	s.items[e.ID] = cloneEnrollment(*e)
	return nil
}

func (s *EnrollmentStore) Get(_ context.Context, id string) (*domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return nil, domain.ErrEnrollmentNotFound
	}
	out := cloneEnrollment(e)
	return &out, nil
}

func (s *EnrollmentStore) FindByStudentAndProduct(_ context.Context, studentID, productID string) (*domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.items {
		if e.StudentID == studentID && e.ProductID == productID {
			out := cloneEnrollment(e)
			return &out, nil
		}
	}
	return nil, domain.ErrEnrollmentNotFound
}

func (s *EnrollmentStore) AttachPreference(_ context.Context, id, preferenceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return domain.ErrEnrollmentNotFound
	}
	if e.PreferenceID != nil {
		if *e.PreferenceID == preferenceID {
			return nil
		}
		return domain.ErrPreferenceAlreadySet
	}
	e.PreferenceID = &preferenceID
	e.UpdatedAt = s.now()
	s.items[id] = e
	return nil
}

func (s *EnrollmentStore) Activate(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return false, domain.ErrEnrollmentNotFound
	}
	if e.State != domain.EnrollmentPreEnrolled {
		return false, nil
	}
	e.State = domain.EnrollmentActive
	e.UpdatedAt = s.now()
	s.items[id] = e
	return true, nil
}

func (s *EnrollmentStore) DeletePreEnrolled(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok || e.State != domain.EnrollmentPreEnrolled {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

func (s *EnrollmentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *EnrollmentStore) ListByStudents(_ context.Context, studentIDs []string) ([]domain.Enrollment, error) {
	want := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Enrollment
	for _, e := range s.items {
		if _, ok := want[e.StudentID]; ok {
			out = append(out, cloneEnrollment(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Len returns the number of stored enrollments.
func (s *EnrollmentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func cloneEnrollment(e domain.Enrollment) domain.Enrollment {
	if e.PreferenceID != nil {
		v := *e.PreferenceID
		e.PreferenceID = &v
	}
	return e
}
