// Package memory provides in-process implementations of the domain ports,
// used for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mateatletas/payments/internal/domain"
)

// MembershipStore implements domain.MembershipRepository on a map.
type MembershipStore struct {
	mu    sync.Mutex
	items map[string]domain.Membership
	now   func() time.Time
}

func NewMembershipStore() *MembershipStore {
	return &MembershipStore{items: make(map[string]domain.Membership), now: time.Now}
}

func (s *MembershipStore) Create(_ context.Context, m *domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[m.ID]; ok {
		return domain.ErrConflict
	}
	if m.State == domain.MembershipActive && s.hasActive(m.TutorID, m.ID) {
		return domain.ErrActiveMembershipExists
	}

	now := s.now()
	m.CreatedAt, m.UpdatedAt = now, now
	s.items[m.ID] = clone(*m)
	return nil
}

func (s *MembershipStore) Get(_ context.Context, id string) (*domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.items[id]
	if !ok {
		return nil, domain.ErrMembershipNotFound
	}
	out := clone(m)
	return &out, nil
}

// Update holds the store lock for the whole read-modify-write.
func (s *MembershipStore) Update(_ context.Context, id string, fn domain.MembershipMutator) (*domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[id]
	if !ok {
		return nil, domain.ErrMembershipNotFound
	}

	m := clone(stored)
	changed, err := fn(&m)
	if err != nil {
		return nil, err
	}
	if !changed {
		return &m, nil
	}
	if m.State == domain.MembershipActive && s.hasActive(m.TutorID, m.ID) {
		return nil, domain.ErrActiveMembershipExists
	}

	m.UpdatedAt = s.now()
	s.items[id] = clone(m)
	return &m, nil
}

func (s *MembershipStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *MembershipStore) ListByTutor(_ context.Context, tutorID string) ([]domain.Membership, error) {
	return s.filter(func(m domain.Membership) bool { return m.TutorID == tutorID }), nil
}

func (s *MembershipStore) ListActiveDueBefore(_ context.Context, t time.Time) ([]domain.Membership, error) {
	return s.filter(func(m domain.Membership) bool {
		return m.State == domain.MembershipActive && m.NextPaymentDate != nil && m.NextPaymentDate.Before(t)
	}), nil
}

// Len returns the number of stored memberships.
func (s *MembershipStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MembershipStore) filter(keep func(domain.Membership) bool) []domain.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Membership
	for _, m := range s.items {
		if keep(m) {
			out = append(out, clone(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MembershipStore) hasActive(tutorID, exceptID string) bool {
	for id, m := range s.items {
		if id != exceptID && m.TutorID == tutorID && m.State == domain.MembershipActive {
			return true
		}
	}
	return false
}

// clone copies pointer fields so callers never alias stored state.
func clone(m domain.Membership) domain.Membership {
	if m.StartDate != nil {
		v := *m.StartDate
		m.StartDate = &v
	}
	if m.NextPaymentDate != nil {
		v := *m.NextPaymentDate
		m.NextPaymentDate = &v
	}
	if m.PreferenceID != nil {
		v := *m.PreferenceID
		m.PreferenceID = &v
	}
	return m
}
