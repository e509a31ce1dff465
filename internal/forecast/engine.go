package forecast

import (
	"context"
	"math"
	"time"

	"retailhub/backend/internal/cache"
	"retailhub/backend/internal/domain"
)

const (
	minDataPoints = 3
	horizonMonths = 3
	windowMonths  = 3

	// Monthly revenue swings roughly ±10% over the year; the seasonal
	// multiplier peaks in April and bottoms out in October.
	seasonalAmplitude = 0.1

	// Slope below this (cents per month) classifies the trend as declining.
	decliningSlopeCents = -10000
)

type Engine struct {
	cache    cache.ForecastCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.ForecastCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopForecastCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Project computes a three month revenue projection from monthly history.
// scope keys the cache entry; pass the branch ID or "enterprise".
func (e *Engine) Project(ctx context.Context, scope string, points []domain.MonthlyPoint) domain.ForecastResponse {
	cacheKey := "retailhub:forecast:" + scope
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached
	}

	resp := Compute(points)
	_ = e.cache.Set(ctx, cacheKey, &resp, e.cacheTTL)
	return resp
}

// Compute is the pure projection. Months with no recorded sales are dropped
// before fitting, mirroring how the history is aggregated from sales rows.
func Compute(points []domain.MonthlyPoint) domain.ForecastResponse {
	history := make([]domain.MonthlyPoint, 0, len(points))
	for _, p := range points {
		if p.RevenueCents > 0 || p.SalesCount > 0 {
			history = append(history, p)
		}
	}

	if len(history) < minDataPoints {
		return domain.ForecastResponse{
			InsufficientData: true,
			Trend:            "insufficient_data",
			Hint:             "at least 3 months of sales history required",
			DataPoints:       len(history),
		}
	}

	revenues := make([]float64, len(history))
	var total float64
	for i, p := range history {
		revenues[i] = float64(p.RevenueCents)
		total += revenues[i]
	}

	slope, intercept := linearRegression(revenues)

	last := history[len(history)-1]
	predictions := make([]domain.ForecastPoint, 0, horizonMonths)
	for k := 1; k <= horizonMonths; k++ {
		x := float64(len(revenues) - 1 + k)
		predicted := intercept + slope*x
		if predicted < 0 {
			predicted = 0
		}

		year, month := addMonths(last.Year, last.Month, k)
		predicted *= seasonalFactor(month)

		predictions = append(predictions, domain.ForecastPoint{
			Year:         year,
			Month:        month,
			RevenueCents: int64(math.Round(predicted)),
		})
	}

	movingAvg := make([]domain.MovingAveragePoint, 0, len(history))
	for i := windowMonths - 1; i < len(history); i++ {
		var sum float64
		for j := i - windowMonths + 1; j <= i; j++ {
			sum += revenues[j]
		}
		movingAvg = append(movingAvg, domain.MovingAveragePoint{
			Year:         history[i].Year,
			Month:        history[i].Month,
			AverageCents: int64(math.Round(sum / windowMonths)),
		})
	}

	return domain.ForecastResponse{
		Historical:      history,
		Predictions:     predictions,
		MovingAverage:   movingAvg,
		Slope:           slope,
		AvgMonthlyCents: int64(math.Round(total / float64(len(revenues)))),
		Trend:           classifyTrend(slope),
		GrowthRate:      growthRate(revenues),
		DataPoints:      len(history),
	}
}

// linearRegression fits y = intercept + slope*x by ordinary least squares
// over x = 0..n-1.
func linearRegression(values []float64) (slope float64, intercept float64) {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

func seasonalFactor(month int) float64 {
	return 1 + seasonalAmplitude*math.Sin(float64(month-1)*math.Pi/6)
}

func classifyTrend(slope float64) string {
	switch {
	case slope > 0:
		return "growing"
	case slope < decliningSlopeCents:
		return "declining"
	default:
		return "stable"
	}
}

// growthRate is the percentage change from the first to the last month of
// the window. A zero first month reports 0 rather than dividing by zero.
func growthRate(revenues []float64) float64 {
	if len(revenues) == 0 || revenues[0] == 0 {
		return 0
	}
	first := revenues[0]
	lastVal := revenues[len(revenues)-1]
	return (lastVal - first) / first * 100
}

func addMonths(year int, month int, k int) (int, int) {
	month += k
	for month > 12 {
		month -= 12
		year++
	}
	return year, month
}
