package memory

import (
	"context"
	"sync"
	"time"
)

// Deduplicator implements domain.WebhookDeduplicator with expiring map entries.
type Deduplicator struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{entries: make(map[string]time.Time), now: time.Now}
}

func (d *Deduplicator) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	expires, ok := d.entries[key]
	if !ok {
		return false, nil
	}
	if !d.now().Before(expires) {
		delete(d.entries, key)
		return false, nil
	}
	return true, nil
}

func (d *Deduplicator) Mark(_ context.Context, key string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[key] = d.now().Add(ttl)
	return nil
}
