package cache

import (
	"context"
	"fmt"
	"time"

	"churnguard/model"
)

// PredictionTTL bounds how stale a served risk score can be. Predictions are
// refreshed in bulk by the refresher worker, so an hour keeps dashboard reads
// off the database without serving scores from a retired model for long.
const PredictionTTL = time.Hour

func predictionKey(customerID string) string {
	return fmt.Sprintf("prediction:%s", customerID)
}

// PredictionCache caches per-customer churn predictions in Redis. A nil
// receiver or a nil underlying client is a no-op cache, so callers never
// branch on Redis availability.
type PredictionCache struct {
	redis *RedisClient
}

// NewPredictionCache wraps a Redis client as a prediction cache
func NewPredictionCache(redis *RedisClient) *PredictionCache {
	return &PredictionCache{redis: redis}
}

// Put stores a prediction under prediction:<customer_id>
func (c *PredictionCache) Put(ctx context.Context, pred *model.Prediction) error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Set(ctx, predictionKey(pred.CustomerID), pred, PredictionTTL)
}

// Get returns the cached prediction for a customer, or nil on miss. Cache
// errors degrade to a miss.
func (c *PredictionCache) Get(ctx context.Context, customerID string) *model.Prediction {
	if c == nil || c.redis == nil {
		return nil
	}
	var pred model.Prediction
	if err := c.redis.Get(ctx, predictionKey(customerID), &pred); err != nil {
		return nil
	}
	return &pred
}

// Invalidate drops the cached prediction for a customer, e.g. after a
// retention intervention changes their risk profile
func (c *PredictionCache) Invalidate(ctx context.Context, customerID string) error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Delete(ctx, predictionKey(customerID))
}
