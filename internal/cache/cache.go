package cache

import (
	"context"
	"time"

	"retailhub/backend/internal/domain"
)

type ForecastCache interface {
	Get(ctx context.Context, key string) (*domain.ForecastResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.ForecastResponse, ttl time.Duration) error
}

type NoopForecastCache struct{}

func (NoopForecastCache) Get(_ context.Context, _ string) (*domain.ForecastResponse, bool, error) {
	return nil, false, nil
}

func (NoopForecastCache) Set(_ context.Context, _ string, _ *domain.ForecastResponse, _ time.Duration) error {
	return nil
}
