// Package analysis holds the baselining and anomaly detection core. It is
// pure computation over in-memory snapshots: no I/O, no shared state, safe
// for concurrent use over disjoint inputs.
package analysis

import (
	"math"

	"github.com/DrSkyle/costguardian/pkg/storage"
)

// Baseline is the expected-cost statistic for one service or the account
// total, derived from historical snapshots. It is recomputed per detection
// run and never persisted.
type Baseline struct {
	Mean  float64 // Exponentially weighted mean of non-zero costs, newest weighted highest.
	Std   float64 // Unweighted sample standard deviation of the same series.
	Trend float64 // OLS slope over the series; positive = rising.

	MinCost float64
	MaxCost float64

	// SampleCount counts all historical entries considered, zero-cost days
	// included. It gates data sufficiency only; the statistics above come
	// from the non-zero subset.
	SampleCount int
}

// HasEnoughData reports whether the baseline can support anomaly
// evaluation. Below three samples the answer is "cannot evaluate", not
// "no anomaly".
func (b Baseline) HasEnoughData() bool { return b.SampleCount >= 3 }

// DefaultDecayFactor makes each day 90% as influential as the next-more-
// recent day.
const DefaultDecayFactor = 0.9

// BaselineCalculator derives baselines from ordered (oldest to newest)
// snapshot series.
type BaselineCalculator struct {
	DecayFactor float64
}

// NewBaselineCalculator returns a calculator with the default decay factor.
func NewBaselineCalculator() *BaselineCalculator {
	return &BaselineCalculator{DecayFactor: DefaultDecayFactor}
}

// TotalBaseline computes the baseline over each snapshot's total cost.
func (c *BaselineCalculator) TotalBaseline(snapshots []storage.CostSnapshot) Baseline {
	costs := make([]float64, len(snapshots))
	for i, s := range snapshots {
		costs[i] = s.TotalCost
	}
	return c.calculate(costs)
}

// ServiceBaseline computes the baseline over one service's cost series.
// Days where the service is absent contribute a zero.
func (c *BaselineCalculator) ServiceBaseline(snapshots []storage.CostSnapshot, service string) Baseline {
	costs := make([]float64, len(snapshots))
	for i, s := range snapshots {
		costs[i] = s.CostByService[service]
	}
	return c.calculate(costs)
}

// AllServices returns the union of service names seen across the snapshots.
// The detector uses it to tell "existing service with zero recent cost"
// apart from "brand new service".
func (c *BaselineCalculator) AllServices(snapshots []storage.CostSnapshot) map[string]struct{} {
	services := make(map[string]struct{})
	for _, s := range snapshots {
		for name := range s.CostByService {
			services[name] = struct{}{}
		}
	}
	return services
}

func (c *BaselineCalculator) calculate(costs []float64) Baseline {
	if len(costs) == 0 {
		return Baseline{}
	}

	// Zero days mean the service was not used, not that it was free.
	nonZero := make([]float64, 0, len(costs))
	for _, cost := range costs {
		if cost > 0 {
			nonZero = append(nonZero, cost)
		}
	}
	if len(nonZero) == 0 {
		// The service existed in these snapshots but cost nothing;
		// SampleCount keeps the unfiltered length to signal that.
		return Baseline{SampleCount: len(costs)}
	}

	// Exponential decay weights, reversed so the newest sample carries
	// decay^0 and the oldest the smallest weight.
	n := len(nonZero)
	var weightedSum, weightTotal float64
	for i, cost := range nonZero {
		w := math.Pow(c.DecayFactor, float64(n-1-i))
		weightedSum += cost * w
		weightTotal += w
	}
	mean := 0.0
	if weightTotal > 0 {
		mean = weightedSum / weightTotal
	}

	minCost, maxCost := nonZero[0], nonZero[0]
	for _, cost := range nonZero[1:] {
		minCost = math.Min(minCost, cost)
		maxCost = math.Max(maxCost, cost)
	}

	return Baseline{
		Mean:        round2(mean),
		Std:         round2(stddev(nonZero)),
		Trend:       round4(slope(nonZero)),
		MinCost:     round2(minCost),
		MaxCost:     round2(maxCost),
		SampleCount: len(costs),
	}
}

// stddev is the Bessel-corrected sample standard deviation; 0 below two
// samples.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// slope is the ordinary least-squares slope of cost against index; 0 below
// three samples.
func slope(ys []float64) float64 {
	n := len(ys)
	if n < 3 {
		return 0
	}

	xMean := float64(n-1) / 2
	var ySum float64
	for _, y := range ys {
		ySum += y
	}
	yMean := ySum / float64(n)

	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

// LatestPerDay reduces intraday snapshots to one representative per date,
// the one with the highest hour, preserving date order of first appearance.
func LatestPerDay(snapshots []storage.CostSnapshot) []storage.CostSnapshot {
	byDate := make(map[string]storage.CostSnapshot)
	var order []string
	for _, s := range snapshots {
		cur, ok := byDate[s.Date]
		if !ok {
			order = append(order, s.Date)
			byDate[s.Date] = s
			continue
		}
		if s.Hour > cur.Hour {
			byDate[s.Date] = s
		}
	}
	out := make([]storage.CostSnapshot, 0, len(order))
	for _, date := range order {
		out = append(out, byDate[date])
	}
	return out
}
