package forecast

import (
	"context"
	"math"
	"testing"
	"time"

	"retailhub/backend/internal/domain"
)

func TestComputeRequiresThreeMonths(t *testing.T) {
	points := []domain.MonthlyPoint{
		{Year: 2026, Month: 6, RevenueCents: 50000, SalesCount: 4},
		{Year: 2026, Month: 7, RevenueCents: 60000, SalesCount: 5},
	}

	resp := Compute(points)

	if !resp.InsufficientData {
		t.Fatalf("expected insufficient_data with 2 months, got %+v", resp)
	}
	if resp.Trend != "insufficient_data" {
		t.Fatalf("expected trend insufficient_data, got %q", resp.Trend)
	}
	if resp.DataPoints != 2 {
		t.Fatalf("expected 2 data points, got %d", resp.DataPoints)
	}
	if len(resp.Predictions) != 0 {
		t.Fatalf("expected no predictions, got %d", len(resp.Predictions))
	}
}

func TestComputeIgnoresEmptyMonths(t *testing.T) {
	points := []domain.MonthlyPoint{
		{Year: 2026, Month: 1},
		{Year: 2026, Month: 2},
		{Year: 2026, Month: 3},
		{Year: 2026, Month: 4, RevenueCents: 10000, SalesCount: 1},
		{Year: 2026, Month: 5, RevenueCents: 20000, SalesCount: 2},
	}

	resp := Compute(points)

	if !resp.InsufficientData {
		t.Fatalf("expected zero-filled months to be ignored, got %+v", resp)
	}
	if resp.DataPoints != 2 {
		t.Fatalf("expected 2 usable data points, got %d", resp.DataPoints)
	}
}

func TestComputeLinearRegression(t *testing.T) {
	// Last month is December so the first prediction lands on January,
	// where the seasonal factor is exactly 1.
	points := []domain.MonthlyPoint{
		{Year: 2025, Month: 10, RevenueCents: 100, SalesCount: 1},
		{Year: 2025, Month: 11, RevenueCents: 200, SalesCount: 2},
		{Year: 2025, Month: 12, RevenueCents: 300, SalesCount: 3},
	}

	resp := Compute(points)

	if resp.InsufficientData {
		t.Fatalf("unexpected insufficient_data: %+v", resp)
	}
	if math.Abs(resp.Slope-100) > 1e-9 {
		t.Fatalf("expected slope 100, got %v", resp.Slope)
	}
	if len(resp.Predictions) != 3 {
		t.Fatalf("expected 3 predictions, got %d", len(resp.Predictions))
	}

	first := resp.Predictions[0]
	if first.Year != 2026 || first.Month != 1 {
		t.Fatalf("expected first prediction for 2026-01, got %d-%02d", first.Year, first.Month)
	}
	if first.RevenueCents != 400 {
		t.Fatalf("expected first prediction 400 (intercept 100 + slope 100 * x 3), got %d", first.RevenueCents)
	}

	if resp.Trend != "growing" {
		t.Fatalf("expected growing trend, got %q", resp.Trend)
	}
	if math.Abs(resp.GrowthRate-200) > 1e-9 {
		t.Fatalf("expected growth rate 200%%, got %v", resp.GrowthRate)
	}
	if resp.AvgMonthlyCents != 200 {
		t.Fatalf("expected avg monthly 200, got %d", resp.AvgMonthlyCents)
	}
}

func TestComputeSeasonalAdjustment(t *testing.T) {
	// Last month March: the April prediction gets the peak factor 1.1.
	points := []domain.MonthlyPoint{
		{Year: 2026, Month: 1, RevenueCents: 1000, SalesCount: 1},
		{Year: 2026, Month: 2, RevenueCents: 1000, SalesCount: 1},
		{Year: 2026, Month: 3, RevenueCents: 1000, SalesCount: 1},
	}

	resp := Compute(points)

	if resp.Slope != 0 {
		t.Fatalf("expected flat slope, got %v", resp.Slope)
	}
	first := resp.Predictions[0]
	if first.Month != 4 {
		t.Fatalf("expected April prediction, got month %d", first.Month)
	}
	if first.RevenueCents != 1100 {
		t.Fatalf("expected 1000 * 1.1 = 1100 for April, got %d", first.RevenueCents)
	}
}

func TestComputeMonthRollover(t *testing.T) {
	points := []domain.MonthlyPoint{
		{Year: 2025, Month: 9, RevenueCents: 5000, SalesCount: 1},
		{Year: 2025, Month: 10, RevenueCents: 5000, SalesCount: 1},
		{Year: 2025, Month: 11, RevenueCents: 5000, SalesCount: 1},
	}

	resp := Compute(points)

	want := []struct{ year, month int }{
		{2025, 12},
		{2026, 1},
		{2026, 2},
	}
	for i, w := range want {
		got := resp.Predictions[i]
		if got.Year != w.year || got.Month != w.month {
			t.Fatalf("prediction %d: expected %d-%02d, got %d-%02d", i, w.year, w.month, got.Year, got.Month)
		}
	}
}

func TestComputeDecliningTrendClampsAtZero(t *testing.T) {
	points := []domain.MonthlyPoint{
		{Year: 2026, Month: 4, RevenueCents: 300000, SalesCount: 3},
		{Year: 2026, Month: 5, RevenueCents: 200000, SalesCount: 2},
		{Year: 2026, Month: 6, RevenueCents: 100000, SalesCount: 1},
	}

	resp := Compute(points)

	if resp.Trend != "declining" {
		t.Fatalf("expected declining trend, got %q", resp.Trend)
	}
	// Linear fit hits zero at x=3; later predictions would go negative.
	for i, p := range resp.Predictions {
		if p.RevenueCents < 0 {
			t.Fatalf("prediction %d went negative: %d", i, p.RevenueCents)
		}
	}
}

func TestComputeMovingAverage(t *testing.T) {
	points := []domain.MonthlyPoint{
		{Year: 2026, Month: 1, RevenueCents: 100, SalesCount: 1},
		{Year: 2026, Month: 2, RevenueCents: 200, SalesCount: 1},
		{Year: 2026, Month: 3, RevenueCents: 300, SalesCount: 1},
		{Year: 2026, Month: 4, RevenueCents: 400, SalesCount: 1},
	}

	resp := Compute(points)

	if len(resp.MovingAverage) != 2 {
		t.Fatalf("expected 2 moving average points, got %d", len(resp.MovingAverage))
	}
	if resp.MovingAverage[0].AverageCents != 200 {
		t.Fatalf("expected first window average 200, got %d", resp.MovingAverage[0].AverageCents)
	}
	if resp.MovingAverage[1].AverageCents != 300 {
		t.Fatalf("expected second window average 300, got %d", resp.MovingAverage[1].AverageCents)
	}
}

func TestComputeGrowthRateZeroBaseline(t *testing.T) {
	// A month can carry sales with zero revenue (full writeoffs); it still
	// counts as history but must not divide the growth rate by zero.
	points := []domain.MonthlyPoint{
		{Year: 2026, Month: 1, RevenueCents: 0, SalesCount: 2},
		{Year: 2026, Month: 2, RevenueCents: 100, SalesCount: 1},
		{Year: 2026, Month: 3, RevenueCents: 200, SalesCount: 1},
	}

	resp := Compute(points)

	if resp.GrowthRate != 0 {
		t.Fatalf("expected growth rate 0 with zero baseline, got %v", resp.GrowthRate)
	}
}

type recordingCache struct {
	stored *domain.ForecastResponse
	key    string
}

func (c *recordingCache) Get(_ context.Context, key string) (*domain.ForecastResponse, bool, error) {
	if c.stored != nil && c.key == key {
		return c.stored, true, nil
	}
	return nil, false, nil
}

func (c *recordingCache) Set(_ context.Context, key string, value *domain.ForecastResponse, _ time.Duration) error {
	c.key = key
	c.stored = value
	return nil
}

func TestProjectCachesPerScope(t *testing.T) {
	rc := &recordingCache{}
	engine := NewEngine(rc, time.Minute)

	points := []domain.MonthlyPoint{
		{Year: 2026, Month: 1, RevenueCents: 100, SalesCount: 1},
		{Year: 2026, Month: 2, RevenueCents: 200, SalesCount: 1},
		{Year: 2026, Month: 3, RevenueCents: 300, SalesCount: 1},
	}

	first := engine.Project(context.Background(), "branch-1", points)
	if rc.stored == nil {
		t.Fatalf("expected computed forecast to be cached")
	}

	// A second call with different data but the same scope must hit the cache.
	second := engine.Project(context.Background(), "branch-1", points[:1])
	if second.DataPoints != first.DataPoints {
		t.Fatalf("expected cached forecast, got recompute: %+v", second)
	}
}
