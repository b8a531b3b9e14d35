package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/savoria-foods/quality-engine/pkg/models"
)

const scoreCacheTTL = 12 * time.Hour

// ScoreCache keeps the latest health score records in Redis for fast
// dashboard reads. The database record stays authoritative: every method is
// a no-op when Redis is not configured, and cache misses fall through to the
// repository.
type ScoreCache struct {
	client *redis.Client
}

// NewScoreCache wraps a Redis client, which may be nil to disable caching.
func NewScoreCache(client *redis.Client) *ScoreCache {
	return &ScoreCache{client: client}
}

func scoreCacheKey(entityType models.EntityType, entityID uuid.UUID) string {
	return fmt.Sprintf("health:%s:%s", entityType, entityID)
}

// Set stores the record under its entity key.
func (c *ScoreCache) Set(ctx context.Context, record *models.HealthScoreRecord) error {
	if c == nil || c.client == nil {
		return nil
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal score record: %w", err)
	}

	key := scoreCacheKey(record.EntityType, record.EntityID)
	if err := c.client.Set(ctx, key, payload, scoreCacheTTL).Err(); err != nil {
		return fmt.Errorf("cache score record: %w", err)
	}

	return nil
}

// Get returns the cached record for one entity, or (nil, nil) on a miss.
func (c *ScoreCache) Get(ctx context.Context, entityType models.EntityType, entityID uuid.UUID) (*models.HealthScoreRecord, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	payload, err := c.client.Get(ctx, scoreCacheKey(entityType, entityID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cached score: %w", err)
	}

	var record models.HealthScoreRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal cached score: %w", err)
	}

	return &record, nil
}
