package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/szegedss/ecommerce-mern-sub000/internal/domain"
	apperrors "github.com/szegedss/ecommerce-mern-sub000/pkg/errors"
)

const summaryKeyPrefix = "review:summary:"

// SummaryCache caches per-product review summaries in Redis.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache creates a new Redis-backed review summary cache.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cached review summary for the product.
func (c *SummaryCache) Get(ctx context.Context, productID string) (*domain.ReviewSummary, error) {
	key := summaryKeyPrefix + productID

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NotFound("review summary", productID)
		}
		return nil, fmt.Errorf("redis get review summary: %w", err)
	}

	var summary domain.ReviewSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("unmarshal review summary: %w", err)
	}

	return &summary, nil
}

// Set stores a review summary for the product with the configured TTL.
func (c *SummaryCache) Set(ctx context.Context, productID string, summary *domain.ReviewSummary) error {
	key := summaryKeyPrefix + productID

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal review summary: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set review summary: %w", err)
	}

	return nil
}

// Invalidate drops the cached summary for the product. Called on every
// review mutation so readers never see a stale aggregate past the TTL.
func (c *SummaryCache) Invalidate(ctx context.Context, productID string) error {
	key := summaryKeyPrefix + productID

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del review summary: %w", err)
	}

	return nil
}
