package domain

import (
	"context"
	"time"
)

// MembershipMutator mutates a locked membership in place. It reports whether
// anything changed so the store can skip the write.
type MembershipMutator func(m *Membership) (changed bool, err error)

// MembershipRepository persists tutor memberships.
// This is a "port" in hexagonal architecture - the domain defines what it needs,
// and infrastructure provides the implementation.
type MembershipRepository interface {
	// Create inserts a new membership. Returns ErrActiveMembershipExists when the
	// tutor already holds an Active membership.
	Create(ctx context.Context, m *Membership) error

	// Get returns ErrMembershipNotFound if the membership doesn't exist.
	Get(ctx context.Context, id string) (*Membership, error)

	// Update loads the membership under a per-row lock, applies fn and persists
	// the result when fn reports a change. The updated record is returned.
	Update(ctx context.Context, id string, fn MembershipMutator) (*Membership, error)

	// Delete hard-deletes the membership. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// ListByTutor returns all memberships of a tutor, newest first.
	ListByTutor(ctx context.Context, tutorID string) ([]Membership, error)

	// ListActiveDueBefore returns Active memberships whose next payment date is before t.
	ListActiveDueBefore(ctx context.Context, t time.Time) ([]Membership, error)
}

// EnrollmentRepository persists course enrollments.
type EnrollmentRepository interface {
	// Create inserts a PreEnrolled enrollment. Returns ErrDuplicateEnrollment when
	// the (student, product) pair already exists.
	Create(ctx context.Context, e *Enrollment) error

	Get(ctx context.Context, id string) (*Enrollment, error)

	// FindByStudentAndProduct returns ErrEnrollmentNotFound when no record exists.
	FindByStudentAndProduct(ctx context.Context, studentID, productID string) (*Enrollment, error)

	// AttachPreference sets the preference id once. Returns ErrPreferenceAlreadySet
	// if a different preference is already stored.
	AttachPreference(ctx context.Context, id, preferenceID string) error

	// Activate moves a PreEnrolled enrollment to Active. It reports whether the
	// row changed; an already Active enrollment returns false and no error.
	Activate(ctx context.Context, id string) (bool, error)

	// DeletePreEnrolled removes the enrollment only while it is PreEnrolled and
	// reports whether a row was removed.
	DeletePreEnrolled(ctx context.Context, id string) (bool, error)

	// Delete removes the enrollment unconditionally.
	Delete(ctx context.Context, id string) error

	// ListByStudents returns the enrollments of the given students, newest first.
	ListByStudents(ctx context.Context, studentIDs []string) ([]Enrollment, error)
}

// ProductCatalog is the read-only product catalog owned by the back office.
type ProductCatalog interface {
	// FindByID returns ErrProductNotFound if the product doesn't exist.
	FindByID(ctx context.Context, productID string) (*Product, error)

	// FindSubscriptions returns the active Subscription products.
	FindSubscriptions(ctx context.Context) ([]Product, error)
}

// Directory resolves tutors and their students.
type Directory interface {
	FindTutor(ctx context.Context, tutorID string) (*Tutor, error)

	// FindStudent returns ErrStudentNotFound when the student doesn't exist or
	// belongs to another tutor.
	FindStudent(ctx context.Context, studentID, tutorID string) (*Student, error)

	ListStudents(ctx context.Context, tutorID string) ([]Student, error)
}

// PaymentGateway defines the interface for interacting with the payment provider.
// This abstracts away the details of Mercado Pago SDK usage.
type PaymentGateway interface {
	// IsMockMode is fixed for the lifetime of the process.
	IsMockMode() bool

	// CreatePreference creates a payment preference in Mercado Pago.
	// Returns ErrIntegrationFailure when the provider fails or answers without
	// an id and init point.
	CreatePreference(ctx context.Context, data PreferenceData) (*Preference, error)

	// GetPayment retrieves payment information for a webhook notification.
	GetPayment(ctx context.Context, paymentID string) (*PaymentInfo, error)
}

// EventPublisher publishes lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event LifecycleEvent) error
}

// WebhookDeduplicator records terminal webhook outcomes so redeliveries can be skipped.
type WebhookDeduplicator interface {
	// Seen reports whether the key was already marked.
	Seen(ctx context.Context, key string) (bool, error)

	// Mark records the key for ttl.
	Mark(ctx context.Context, key string, ttl time.Duration) error
}
