// Package baseline derives per-service cost baselines from bounded history.
//
// A Baseline is purely a function of the observed cost series: it has no
// lifecycle of its own and is recomputed on demand from stored snapshots.
package baseline

import (
	"math"

	"github.com/costguard/costguard/internal/models"
)

// decayFactor is the exponential weight ratio between adjacent observations.
// 0.9 means each day carries 90% of the weight of the day after it, so the
// mean adapts quickly to legitimate cost shifts.
const decayFactor = 0.9

// Baseline summarises a service's recent cost history.
type Baseline struct {
	// Mean is the recency-weighted mean of the series.
	Mean float64

	// StdDev is the unweighted sample standard deviation; 0 when the
	// series has fewer than 2 observations.
	StdDev float64

	// Trend is the slope of an ordinary least-squares fit of cost against
	// sequential index; 0 when the series has fewer than 3 observations.
	Trend float64

	// Min and Max bound the observed series.
	Min float64
	Max float64

	// SampleCount is the number of observations the baseline was computed
	// from, including zero-cost periods.
	SampleCount int
}

// HasEnoughData reports whether the baseline rests on enough history for
// deviation signals. Below 3 samples only the new-service signal applies.
func (b Baseline) HasEnoughData() bool {
	return b.SampleCount >= 3
}

// Compute derives a Baseline from a cost series ordered oldest first.
// Zero-cost observations are excluded from the statistics (the service
// simply was not used that period) but still count toward SampleCount.
// An empty series yields the zero Baseline.
func Compute(costs []float64) Baseline {
	if len(costs) == 0 {
		return Baseline{}
	}

	series := make([]float64, 0, len(costs))
	for _, c := range costs {
		if c > 0 {
			series = append(series, c)
		}
	}
	if len(series) == 0 {
		return Baseline{SampleCount: len(costs)}
	}

	b := Baseline{
		Mean:        weightedMean(series),
		StdDev:      sampleStdDev(series),
		Trend:       trendSlope(series),
		Min:         series[0],
		Max:         series[0],
		SampleCount: len(costs),
	}
	for _, c := range series[1:] {
		b.Min = math.Min(b.Min, c)
		b.Max = math.Max(b.Max, c)
	}
	return b
}

// FromSnapshots extracts service's cost series from snapshots (ordered
// oldest first) and computes its baseline.
func FromSnapshots(snapshots []models.CostSnapshot, service string) Baseline {
	costs := make([]float64, 0, len(snapshots))
	for i := range snapshots {
		costs = append(costs, snapshots[i].ServiceCost(service))
	}
	return Compute(costs)
}

// TotalFromSnapshots computes the baseline of the account-level total cost.
func TotalFromSnapshots(snapshots []models.CostSnapshot) Baseline {
	costs := make([]float64, 0, len(snapshots))
	for i := range snapshots {
		costs = append(costs, snapshots[i].TotalCost)
	}
	return Compute(costs)
}

// Services returns every service name appearing anywhere in snapshots.
func Services(snapshots []models.CostSnapshot) map[string]struct{} {
	seen := make(map[string]struct{})
	for i := range snapshots {
		for svc := range snapshots[i].CostByService {
			seen[svc] = struct{}{}
		}
	}
	return seen
}

// weightedMean computes the exponentially decayed mean with the most recent
// observation weighted highest: weight_i = decay^(n-1-i).
func weightedMean(series []float64) float64 {
	n := len(series)
	var sum, weightTotal float64
	for i, c := range series {
		w := math.Pow(decayFactor, float64(n-1-i))
		sum += c * w
		weightTotal += w
	}
	if weightTotal == 0 {
		return 0
	}
	return sum / weightTotal
}

// sampleStdDev is the unweighted sample standard deviation (n-1 divisor).
func sampleStdDev(series []float64) float64 {
	n := len(series)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, c := range series {
		mean += c
	}
	mean /= float64(n)

	var ss float64
	for _, c := range series {
		d := c - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// trendSlope fits cost against sequential index by ordinary least squares
// and returns the slope in dollars per period.
func trendSlope(series []float64) float64 {
	n := len(series)
	if n < 3 {
		return 0
	}

	xMean := float64(n-1) / 2
	var yMean float64
	for _, c := range series {
		yMean += c
	}
	yMean /= float64(n)

	var num, den float64
	for i, c := range series {
		dx := float64(i) - xMean
		num += dx * (c - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}
