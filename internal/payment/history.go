package payment

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/domain"
)

const (
	historyKindMembership = "membresia"
	historyKindCourse     = "curso"
)

// History merges a tutor's memberships and course enrollments, newest first,
// and totals what was spent on Active records.
func (s *Service) History(ctx context.Context, tutorID string) (*domain.PaymentHistory, error) {
	memberships, err := s.memberships.ListForTutor(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListForTutor(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	products := newProductCache(s.catalog, s.logger)
	history := &domain.PaymentHistory{
		Entries:           make([]domain.HistoryEntry, 0, len(memberships)+len(enrollments)),
		ActiveEnrollments: []domain.Enrollment{},
	}
	spent := decimal.Zero

	for i, m := range memberships {
		product := products.get(ctx, m.ProductID)
		entry := domain.HistoryEntry{
			ID:      m.ID,
			Kind:    historyKindMembership,
			Product: product,
			State:   string(m.State),
			Date:    m.CreatedAt,
			Amount:  priceOf(product),
		}
		history.Entries = append(history.Entries, entry)

		if m.State == domain.MembershipActive {
			history.Summary.ActiveMemberships++
			spent = spent.Add(entry.Amount)
		}
		if history.CurrentMembership == nil && m.State.Open() {
			history.CurrentMembership = &memberships[i]
		}
	}

	for _, e := range enrollments {
		product := products.get(ctx, e.ProductID)
		entry := domain.HistoryEntry{
			ID:        e.ID,
			Kind:      historyKindCourse,
			Product:   product,
			State:     string(e.State),
			Date:      e.CreatedAt,
			Amount:    priceOf(product),
			StudentID: e.StudentID,
		}
		history.Entries = append(history.Entries, entry)

		if e.State == domain.EnrollmentActive {
			history.Summary.ActiveCourses++
			history.ActiveEnrollments = append(history.ActiveEnrollments, e)
			spent = spent.Add(entry.Amount)
		}
	}

	sort.SliceStable(history.Entries, func(i, j int) bool {
		return history.Entries[i].Date.After(history.Entries[j].Date)
	})
	history.Summary.TotalRecords = len(history.Entries)
	history.Summary.TotalSpent = spent
	return history, nil
}

func priceOf(p *domain.Product) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.Price
}

// productCache memoizes catalog lookups for one history request. Missing
// products yield nil entries rather than failing the whole view.
type productCache struct {
	catalog domain.ProductCatalog
	logger  *zap.Logger
	items   map[string]*domain.Product
}

func newProductCache(catalog domain.ProductCatalog, logger *zap.Logger) *productCache {
	return &productCache{catalog: catalog, logger: logger, items: make(map[string]*domain.Product)}
}

func (c *productCache) get(ctx context.Context, id string) *domain.Product {
	if p, ok := c.items[id]; ok {
		return p
	}
	p, err := c.catalog.FindByID(ctx, id)
	if err != nil {
		c.logger.Warn("product lookup failed for history", zap.String("product_id", id), zap.Error(err))
		p = nil
	}
	c.items[id] = p
	return p
}
