// Package redis stores webhook idempotency markers in Redis.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "webhook:processed"

// keyValue is the subset of redis.UniversalClient the deduplicator uses.
type keyValue interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Deduplicator implements domain.WebhookDeduplicator.
type Deduplicator struct {
	client keyValue
	prefix string
}

// NewClient parses a redis:// URL and returns a connected client.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewDeduplicator(client redis.UniversalClient, prefix string) *Deduplicator {
	return newDeduplicator(client, prefix)
}

func newDeduplicator(client keyValue, prefix string) *Deduplicator {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Deduplicator{client: client, prefix: prefix}
}

func (d *Deduplicator) key(k string) string {
	return d.prefix + ":" + k
}

// Seen reports whether the marker exists.
func (d *Deduplicator) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Mark stores the marker with the given ttl.
func (d *Deduplicator) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := d.client.Set(ctx, d.key(key), time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
