package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// CachedResolution is an accepted resolution. Only accepted outcomes are
// cached; everything else is recomputed.
type CachedResolution struct {
	TeamID     string  `json:"team_id"`
	Tier       string  `json:"tier"`
	Confidence float64 `json:"confidence"`
}

// ResolutionCache stores accepted resolutions under the merge resolver
// version. A merge changes the version, so every older entry stops being read
// and ages out through its TTL.
type ResolutionCache struct {
	client *Client
	ttl    time.Duration
}

// NewResolutionCache creates a cache with the given entry TTL
func NewResolutionCache(client *Client, ttl time.Duration) *ResolutionCache {
	return &ResolutionCache{
		client: client,
		ttl:    ttl,
	}
}

// Key renders the cache key
func (c *ResolutionCache) Key(version, provider, externalID string) string {
	return fmt.Sprintf("%sresolve:%s:%s:%s", KeyPrefix, version, provider, externalID)
}

// Get returns nil, nil on a miss
func (c *ResolutionCache) Get(ctx context.Context, version, provider, externalID string) (*CachedResolution, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.ResolutionCache.Get")
	defer span.End()

	data, err := c.client.rdb.Get(ctx, c.Key(version, provider, externalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read resolution cache: %w", err)
	}

	var res CachedResolution
	if err := json.Unmarshal(data, &res); err != nil {
		c.client.logger.WithContext(ctx).WithError(err).Warn("Dropping corrupt resolution cache entry")
		return nil, nil
	}
	return &res, nil
}

// Set stores an accepted resolution
func (c *ResolutionCache) Set(ctx context.Context, version, provider, externalID string, res CachedResolution) error {
	ctx, span := tracing.StartSpan(ctx, "redis.ResolutionCache.Set")
	defer span.End()

	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if err := c.client.rdb.Set(ctx, c.Key(version, provider, externalID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write resolution cache: %w", err)
	}
	return nil
}
