package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"firegate-svc/src/internal/config"
	"firegate-svc/src/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Service interface {
	SaveStats(ctx context.Context, stats *models.StoreStats) error
	GetStats(ctx context.Context) (*models.StoreStats, error)
}

type cacheService struct {
	client *redis.Client
	cfg    *config.CacheConfig
}

func NewCacheService(client *redis.Client, cfg *config.Configuration) Service {
	return &cacheService{
		client: client,
		cfg:    &cfg.Cache}
}

func (c *cacheService) SaveStats(ctx context.Context, stats *models.StoreStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal stats for cache")
		return models.ErrRedisSet
	}

	expiration := time.Minute * time.Duration(c.cfg.StatsExpirationMinutes)
	err = c.client.Set(ctx, c.cfg.StatsKey, data, expiration).Err()
	if err != nil {
		logrus.WithError(err).Error("Failed to cache stats")
		return models.ErrRedisSet
	}
	return nil
}

func (c *cacheService) GetStats(ctx context.Context) (*models.StoreStats, error) {
	data, err := c.client.Get(ctx, c.cfg.StatsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			logrus.Debug("Stats not found in cache")
			return nil, nil // Not an error, just not found
		}
		logrus.WithError(err).Error("Failed to get stats from cache")
		return nil, models.ErrRedisGet
	}

	var stats models.StoreStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal cached stats")
		return nil, models.ErrRedisGet
	}

	return &stats, nil
}
