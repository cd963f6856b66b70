package cache

import (
	"context"
	"encoding/json"
	"time"

	"hyperview-gateway/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// MarketCache holds per-token market summaries for a short TTL so the
// markets endpoint does not fan out to the aggregator on every request.
// A nil Redis client disables caching: every lookup is a miss and writes
// are dropped, which keeps the REST layer fail-open when Redis is down.
type MarketCache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewMarketCache(client *redis.Client, logger *logrus.Logger) *MarketCache {
	return &MarketCache{
		client: client,
		logger: logger,
	}
}

// GetSummary retrieves a cached market summary. A nil result with nil error
// means a cache miss.
func (c *MarketCache) GetSummary(ctx context.Context, token string) (*models.MarketSummary, error) {
	if c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, "market:"+token).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var summary models.MarketSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, err
	}

	return &summary, nil
}

// SetSummary caches a market summary.
func (c *MarketCache) SetSummary(ctx context.Context, token string, summary *models.MarketSummary, ttl time.Duration) error {
	if c.client == nil {
		return nil
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, "market:"+token, data, ttl).Err()
}
