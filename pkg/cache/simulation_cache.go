package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/prop-engine/internal/engine"
)

// SimulationCacheService stores finished run summaries so repeated
// lookups do not re-run the engine. A nil client disables caching.
type SimulationCacheService struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewSimulationCacheService creates a new simulation cache service
func NewSimulationCacheService(client *redis.Client, logger *logrus.Logger) *SimulationCacheService {
	return &SimulationCacheService{
		client: client,
		logger: logger,
	}
}

// Enabled reports whether a backing client is configured
func (c *SimulationCacheService) Enabled() bool {
	return c != nil && c.client != nil
}

// SetRunSummary stores a run summary under a simulation id
func (c *SimulationCacheService) SetRunSummary(ctx context.Context, id string, summary *engine.RunSummary, expiration time.Duration) error {
	if !c.Enabled() {
		return nil
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	fullKey := fmt.Sprintf("simulation:%s", id)
	if err := c.client.Set(ctx, fullKey, data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set run summary in cache: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"cache_key":  fullKey,
		"iterations": summary.Iterations,
		"expiration": expiration,
	}).Debug("Cached run summary")

	return nil
}

// GetRunSummary retrieves a cached run summary by simulation id
func (c *SimulationCacheService) GetRunSummary(ctx context.Context, id string) (*engine.RunSummary, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("simulation cache disabled")
	}

	fullKey := fmt.Sprintf("simulation:%s", id)
	data, err := c.client.Get(ctx, fullKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("run summary not found in cache")
		}
		return nil, fmt.Errorf("failed to get run summary from cache: %w", err)
	}

	var summary engine.RunSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
	}

	return &summary, nil
}
