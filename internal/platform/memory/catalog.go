package memory

import (
	"context"
	"sync"

	"github.com/mateatletas/payments/internal/domain"
)

// Catalog is a static product catalog.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	order    []string
}

func NewCatalog(products ...domain.Product) *Catalog {
	c := &Catalog{products: make(map[string]domain.Product)}
	for _, p := range products {
		c.Add(p)
	}
	return c
}

func (c *Catalog) Add(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.products[p.ID]; !ok {
		c.order = append(c.order, p.ID)
	}
	c.products[p.ID] = p
}

func (c *Catalog) FindByID(_ context.Context, productID string) (*domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (c *Catalog) FindSubscriptions(_ context.Context) ([]domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.Product
	for _, id := range c.order {
		p := c.products[id]
		if p.Active && p.Type == domain.ProductTypeSubscription {
			out = append(out, p)
		}
	}
	return out, nil
}
