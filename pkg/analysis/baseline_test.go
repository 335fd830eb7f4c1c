package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DrSkyle/costguardian/pkg/storage"
)

func daySnapshot(date string, hour int, costs map[string]float64) storage.CostSnapshot {
	var total float64
	for _, c := range costs {
		total += c
	}
	return storage.CostSnapshot{
		SnapshotID:    "snap-" + date,
		Date:          date,
		Hour:          hour,
		AccountID:     "123456789012",
		TotalCost:     total,
		CostByService: costs,
	}
}

func costSeries(costs ...float64) []storage.CostSnapshot {
	snapshots := make([]storage.CostSnapshot, len(costs))
	for i, c := range costs {
		snapshots[i] = storage.CostSnapshot{TotalCost: c, CostByService: map[string]float64{"Amazon EC2": c}}
	}
	return snapshots
}

func TestBaselineEmptySeries(t *testing.T) {
	b := NewBaselineCalculator().TotalBaseline(nil)
	assert.Zero(t, b.Mean)
	assert.Zero(t, b.SampleCount)
	assert.False(t, b.HasEnoughData())
}

func TestBaselineIgnoresZeroCostDays(t *testing.T) {
	b := NewBaselineCalculator().TotalBaseline(costSeries(0, 10, 0, 12))

	// Zero days still count toward sufficiency but not toward the stats.
	assert.Equal(t, 4, b.SampleCount)
	assert.True(t, b.HasEnoughData())

	// Weighted mean over [10, 12] with decay 0.9: (10*0.9 + 12*1.0) / 1.9.
	assert.InDelta(t, 11.05, b.Mean, 0.001)
	assert.InDelta(t, 1.41, b.Std, 0.001)
	assert.Equal(t, 10.0, b.MinCost)
	assert.Equal(t, 12.0, b.MaxCost)
}

func TestBaselineWeightsRecentDaysHigher(t *testing.T) {
	b := NewBaselineCalculator().TotalBaseline(costSeries(10, 10, 20))

	// Simple mean is 13.33; the newest sample pulls the weighted mean up.
	assert.Greater(t, b.Mean, 13.34)
	assert.InDelta(t, 13.69, b.Mean, 0.001)
}

func TestBaselineAllZeroKeepsSampleCount(t *testing.T) {
	b := NewBaselineCalculator().TotalBaseline(costSeries(0, 0, 0, 0))

	assert.Equal(t, 4, b.SampleCount)
	assert.Zero(t, b.Mean)
	assert.Zero(t, b.Std)
}

func TestBaselineTrend(t *testing.T) {
	rising := NewBaselineCalculator().TotalBaseline(costSeries(1, 2, 3, 4))
	assert.InDelta(t, 1.0, rising.Trend, 0.0001)

	flat := NewBaselineCalculator().TotalBaseline(costSeries(5, 5, 5, 5))
	assert.Zero(t, flat.Trend)
	assert.Zero(t, flat.Std)

	// Two samples cannot support a slope.
	pair := NewBaselineCalculator().TotalBaseline(costSeries(1, 9))
	assert.Zero(t, pair.Trend)
}

func TestBaselineDecayPullsMeanTowardNewest(t *testing.T) {
	// The smaller the decay factor, the more the mean tracks the newest
	// sample. At the limit the mean is the newest value itself.
	series := costSeries(10, 20, 30, 100)
	newest := 100.0

	var lastMean float64
	for i, decay := range []float64{0.9, 0.5, 0.2, 0.05} {
		calc := &BaselineCalculator{DecayFactor: decay}
		mean := calc.TotalBaseline(series).Mean
		assert.Less(t, mean, newest)
		if i > 0 {
			assert.Greater(t, mean, lastMean, "decay %g should weight the newest sample harder", decay)
		}
		lastMean = mean
	}
}

func TestServiceBaselineAbsentDaysAreZero(t *testing.T) {
	snapshots := []storage.CostSnapshot{
		daySnapshot("2026-03-10", 12, map[string]float64{"Amazon S3": 3}),
		daySnapshot("2026-03-11", 12, map[string]float64{"Amazon EC2": 50}),
		daySnapshot("2026-03-12", 12, map[string]float64{"Amazon S3": 5}),
	}
	b := NewBaselineCalculator().ServiceBaseline(snapshots, "Amazon S3")

	assert.Equal(t, 3, b.SampleCount)
	// Stats over [3, 5] only; the absent day contributes a zero and is
	// filtered out.
	assert.Equal(t, 3.0, b.MinCost)
	assert.Equal(t, 5.0, b.MaxCost)
}

func TestAllServicesUnion(t *testing.T) {
	snapshots := []storage.CostSnapshot{
		daySnapshot("2026-03-10", 12, map[string]float64{"Amazon S3": 3, "Amazon EC2": 10}),
		daySnapshot("2026-03-11", 12, map[string]float64{"AWS Lambda": 1}),
	}
	services := NewBaselineCalculator().AllServices(snapshots)

	assert.Len(t, services, 3)
	assert.Contains(t, services, "AWS Lambda")
}

func TestLatestPerDay(t *testing.T) {
	snapshots := []storage.CostSnapshot{
		daySnapshot("2026-03-10", 6, map[string]float64{"Amazon EC2": 10}),
		daySnapshot("2026-03-10", 18, map[string]float64{"Amazon EC2": 40}),
		daySnapshot("2026-03-11", 0, map[string]float64{"Amazon EC2": 12}),
		daySnapshot("2026-03-10", 12, map[string]float64{"Amazon EC2": 25}),
	}
	reduced := LatestPerDay(snapshots)

	assert.Len(t, reduced, 2)
	assert.Equal(t, "2026-03-10", reduced[0].Date)
	assert.Equal(t, 18, reduced[0].Hour)
	assert.Equal(t, "2026-03-11", reduced[1].Date)
}
