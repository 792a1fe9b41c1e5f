package redis

import (
	"context"
	"fmt"
	"time"
)

// Deduper remembers ingest record fingerprints for a window so a replayed
// Kafka batch does not resolve the same record twice.
type Deduper struct {
	client *Client
	ttl    time.Duration
}

// NewDeduper creates a new Deduper
func NewDeduper(client *Client, ttl time.Duration) *Deduper {
	return &Deduper{
		client: client,
		ttl:    ttl,
	}
}

// FirstSeen records fingerprint and reports whether this call was the first
// to see it within the window.
func (d *Deduper) FirstSeen(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := d.client.rdb.SetNX(ctx, KeyPrefix+"seen:"+fingerprint, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record fingerprint: %w", err)
	}
	return ok, nil
}

// Forget drops a fingerprint, used when processing of a first-seen record
// failed and it must be retried.
func (d *Deduper) Forget(ctx context.Context, fingerprint string) error {
	return d.client.rdb.Del(ctx, KeyPrefix+"seen:"+fingerprint).Err()
}
