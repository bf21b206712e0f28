package memory

import (
	"context"
	"sync"

	"github.com/mateatletas/payments/internal/domain"
)

// Directory holds tutors and their students.
type Directory struct {
	mu       sync.RWMutex
	tutors   map[string]domain.Tutor
	students map[string]domain.Student
	order    []string
}

func NewDirectory() *Directory {
	return &Directory{
		tutors:   make(map[string]domain.Tutor),
		students: make(map[string]domain.Student),
	}
}

func (d *Directory) AddTutor(t domain.Tutor) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tutors[t.ID] = t
	return d
}

func (d *Directory) AddStudent(s domain.Student) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.students[s.ID]; !ok {
		d.order = append(d.order, s.ID)
	}
	d.students[s.ID] = s
	return d
}

func (d *Directory) FindTutor(_ context.Context, tutorID string) (*domain.Tutor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.tutors[tutorID]
	if !ok {
		return nil, domain.ErrTutorNotFound
	}
	return &t, nil
}

func (d *Directory) FindStudent(_ context.Context, studentID, tutorID string) (*domain.Student, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.students[studentID]
	if !ok || s.TutorID != tutorID {
		return nil, domain.ErrStudentNotFound
	}
	return &s, nil
}

func (d *Directory) ListStudents(_ context.Context, tutorID string) ([]domain.Student, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []domain.Student
	for _, id := range d.order {
		if s := d.students[id]; s.TutorID == tutorID {
			out = append(out, s)
		}
	}
	return out, nil
}
