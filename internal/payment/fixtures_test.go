package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/domain"
	"github.com/mateatletas/payments/internal/platform/memory"
	"github.com/mateatletas/payments/internal/platform/mercadopago"
)

const frontendURL = "http://localhost:3000"

type fakeGateway struct {
	mu          sync.Mutex
	mock        bool
	payments    map[string]*domain.PaymentInfo
	createErr   error
	getErr      error
	created     []domain.PreferenceData
	getPayments int
}

func (g *fakeGateway) IsMockMode() bool { return g.mock }

func (g *fakeGateway) CreatePreference(_ context.Context, data domain.PreferenceData) (*domain.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, data)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &domain.Preference{ID: "pref-real-1", InitPoint: "https://mp.test/checkout?pref=pref-real-1"}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*domain.PaymentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getPayments++
	if g.getErr != nil {
		return nil, g.getErr
	}
	info, ok := g.payments[id]
	if !ok {
		return nil, errors.New("payment not found at gateway")
	}
	return info, nil
}

func (g *fakeGateway) setPayment(id, status, ref string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.payments == nil {
		g.payments = make(map[string]*domain.PaymentInfo)
	}
	g.payments[id] = &domain.PaymentInfo{
		PaymentID:         id,
		Status:            status,
		ExternalReference: ref,
		Amount:            decimal.NewFromInt(amount),
		Currency:          "ARS",
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// failingAttach wraps a membership store and fails preference attachment.
type failingAttach struct {
	*memory.MembershipStore
}

func (f failingAttach) Update(ctx context.Context, id string, fn domain.MembershipMutator) (*domain.Membership, error) {
	return nil, errors.New("storage unavailable")
}

type harness struct {
	service     *Service
	memberships *memory.MembershipStore
	enrollments *memory.EnrollmentStore
	catalog     *memory.Catalog
	directory   *memory.Directory
	gateway     *fakeGateway
	events      *recordingPublisher
	dedup       *memory.Deduplicator
	metrics     *Metrics
	registry    *prometheus.Registry
}

type harnessOption func(*Deps)

func withEnvironment(env string) harnessOption {
	return func(d *Deps) { d.Environment = env }
}

func withFailingAttach() harnessOption {
	return func(d *Deps) {
		d.Memberships = failingAttach{d.Memberships.(*memory.MembershipStore)}
	}
}

func intPtr(v int) *int { return &v }

func newHarness(t *testing.T, mock bool, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		memberships: memory.NewMembershipStore(),
		enrollments: memory.NewEnrollmentStore(),
		catalog: memory.NewCatalog(
			domain.Product{ID: "prod-subs-1", Name: "Plan Mensual", Type: domain.ProductTypeSubscription, Price: decimal.NewFromInt(5000), DurationMonths: intPtr(1), Active: true},
			domain.Product{ID: "prod-subs-2", Name: "Plan Trimestral", Type: domain.ProductTypeSubscription, Price: decimal.NewFromInt(3000), DurationMonths: intPtr(3), Active: true},
			domain.Product{ID: "prod-subs-old", Name: "Plan Viejo", Type: domain.ProductTypeSubscription, Price: decimal.NewFromInt(100), Active: false},
			domain.Product{ID: "curso-1", Name: "Álgebra", Type: domain.ProductTypeCourse, Price: decimal.NewFromInt(3500), Active: true},
		),
		directory: memory.NewDirectory().
			AddTutor(domain.Tutor{ID: "tutor-1", Email: "tutor@test.com", FirstName: "Carlos", LastName: "López"}).
			AddTutor(domain.Tutor{ID: "tutor-2", Email: "other@test.com"}).
			AddStudent(domain.Student{ID: "est-1", TutorID: "tutor-1", FirstName: "Sofía", LastName: "Martínez"}).
			AddStudent(domain.Student{ID: "est-2", TutorID: "tutor-2"}),
		gateway:  &fakeGateway{mock: mock},
		events:   &recordingPublisher{},
		dedup:    memory.NewDeduplicator(),
		registry: prometheus.NewRegistry(),
	}
	h.metrics = NewMetrics(h.registry)

	deps := Deps{
		Memberships:  h.memberships,
		Enrollments:  h.enrollments,
		Catalog:      h.catalog,
		Directory:    h.directory,
		Gateway:      h.gateway,
		Builder:      mercadopago.PreferenceBuilder{BackendURL: "http://localhost:3001", FrontendURL: frontendURL},
		Mock:         mercadopago.NewMockPreferences(frontendURL),
		Events:       h.events,
		Deduplicator: h.dedup,
		Metrics:      h.metrics,
		Logger:       zap.NewNop(),
		Environment:  "development",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.service = NewService(deps)
	return h
}

func (h *harness) membership(t *testing.T, id string) *domain.Membership {
	t.Helper()
	m, err := h.memberships.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("membership %s: %v", id, err)
	}
	return m
}

// seedMembership stores a Pending membership with a preference attached.
func (h *harness) seedMembership(t *testing.T, id, tutorID, productID string) {
	t.Helper()
	pref := "pref-" + id
	m := &domain.Membership{ID: id, TutorID: tutorID, ProductID: productID, State: domain.MembershipPending, PreferenceID: &pref}
	if err := h.memberships.Create(context.Background(), m); err != nil {
		t.Fatalf("seed membership: %v", err)
	}
}

func (h *harness) seedEnrollment(t *testing.T, id, studentID, productID string) {
	t.Helper()
	e := &domain.Enrollment{ID: id, StudentID: studentID, ProductID: productID, State: domain.EnrollmentPreEnrolled}
	if err := h.enrollments.Create(context.Background(), e); err != nil {
		t.Fatalf("seed enrollment: %v", err)
	}
}

func paymentWebhook(paymentID string) domain.WebhookNotification {
	return domain.WebhookNotification{Type: "payment", Action: "payment.updated", DataID: paymentID}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
