// Package report builds daily and weekly cost summaries from stored
// snapshots. Reports are read-only views; they never trigger detection.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/costguard/costguard/internal/models"
	"github.com/costguard/costguard/internal/store"
)

// ErrNoData is returned when no snapshot exists anywhere near the requested
// date.
var ErrNoData = errors.New("report: no snapshots for period")

// topServiceCount bounds the per-report service breakdown.
const topServiceCount = 5

// fallbackDays is how far back Daily walks when the target day has no
// snapshot yet (billing data lags by up to a day or two).
const fallbackDays = 3

// ServiceCost is one line of a report's service breakdown.
type ServiceCost struct {
	Service string
	Cost    float64
}

// Daily summarises one day of spend.
type Daily struct {
	// Date is the day actually reported; may be earlier than requested when
	// the fallback kicked in.
	Date         string
	UsedFallback bool

	TotalCost   float64
	TopServices []ServiceCost

	// TrendPercent compares the day against the trailing 7-day average;
	// nil when there is not enough history.
	TrendPercent *float64

	BudgetStatus *models.BudgetStatus
	Forecast     *models.Forecast

	AnomalyCount   int
	CriticalCount  int
	SuppressedHint int
}

// Weekly summarises a 7-day window ending at EndDate.
type Weekly struct {
	StartDate string
	EndDate   string
	Days      int

	TotalCost    float64
	DailyAverage float64

	// WeekOverWeekPercent compares against the preceding 7 days; nil when
	// the prior week has no data.
	WeekOverWeekPercent *float64

	TopServices []ServiceCost

	AnomalyCount  int
	CriticalCount int

	BudgetStatus *models.BudgetStatus
	Forecast     *models.Forecast
}

// Builder reads snapshots and produces report values.
type Builder struct {
	store store.Store
}

// NewBuilder returns a Builder over st.
func NewBuilder(st store.Store) *Builder {
	return &Builder{store: st}
}

// Daily builds the summary for date, walking back up to three days when the
// target day has no snapshot yet.
func (b *Builder) Daily(ctx context.Context, accountID, date string) (*Daily, error) {
	snap, usedFallback, err := b.snapshotWithFallback(ctx, accountID, date)
	if err != nil {
		return nil, err
	}

	d := &Daily{
		Date:         snap.Date,
		UsedFallback: usedFallback,
		TotalCost:    snap.TotalCost,
		TopServices:  topServices(snap.CostByService, topServiceCount),
		BudgetStatus: snap.BudgetStatus,
		Forecast:     snap.Forecast,
	}
	for _, a := range snap.AnomaliesDetected {
		if a.Suppressed {
			d.SuppressedHint++
			continue
		}
		d.AnomalyCount++
		if a.Severity == models.SeverityCritical {
			d.CriticalCount++
		}
	}

	if trend, ok := b.trendVsTrailingWeek(ctx, accountID, snap); ok {
		d.TrendPercent = &trend
	}
	return d, nil
}

// Weekly builds the summary for the 7 days ending at endDate inclusive.
func (b *Builder) Weekly(ctx context.Context, accountID, endDate string) (*Weekly, error) {
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", endDate, err)
	}
	after := end.AddDate(0, 0, 1).Format("2006-01-02")
	windowStart := end.AddDate(0, 0, -6).Format("2006-01-02")

	snaps, err := b.store.RecentSnapshots(ctx, accountID, after, 7)
	if err != nil {
		return nil, fmt.Errorf("load week of snapshots: %w", err)
	}
	snaps = fromDate(snaps, windowStart)
	if len(snaps) == 0 {
		return nil, ErrNoData
	}

	w := &Weekly{
		StartDate: snaps[0].Date,
		EndDate:   snaps[len(snaps)-1].Date,
		Days:      len(snaps),
	}

	serviceTotals := make(map[string]float64)
	for i := range snaps {
		snap := &snaps[i]
		w.TotalCost += snap.TotalCost
		for svc, cost := range snap.CostByService {
			serviceTotals[svc] += cost
		}
		for _, a := range snap.AnomaliesDetected {
			if a.Suppressed {
				continue
			}
			w.AnomalyCount++
			if a.Severity == models.SeverityCritical {
				w.CriticalCount++
			}
		}
	}
	w.DailyAverage = w.TotalCost / float64(len(snaps))
	w.TopServices = topServices(serviceTotals, topServiceCount)

	// Budget and forecast come from the freshest snapshot in the window.
	latest := snaps[len(snaps)-1]
	w.BudgetStatus = latest.BudgetStatus
	w.Forecast = latest.Forecast

	priorStart := end.AddDate(0, 0, -13).Format("2006-01-02")
	prior, err := b.store.RecentSnapshots(ctx, accountID, windowStart, 7)
	if err != nil {
		return nil, fmt.Errorf("load prior week: %w", err)
	}
	prior = fromDate(prior, priorStart)
	if len(prior) > 0 {
		var priorTotal float64
		for i := range prior {
			priorTotal += prior[i].TotalCost
		}
		priorAvg := priorTotal / float64(len(prior))
		if priorAvg > 0 {
			change := (w.DailyAverage - priorAvg) / priorAvg * 100
			w.WeekOverWeekPercent = &change
		}
	}
	return w, nil
}

func (b *Builder) snapshotWithFallback(ctx context.Context, accountID, date string) (*models.CostSnapshot, bool, error) {
	snap, err := b.store.GetSnapshot(ctx, date, models.PeriodDaily, accountID)
	if err == nil {
		return snap, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("load snapshot %s: %w", date, err)
	}

	day, perr := time.Parse("2006-01-02", date)
	if perr != nil {
		return nil, false, fmt.Errorf("parse date %q: %w", date, perr)
	}
	for i := 1; i <= fallbackDays; i++ {
		earlier := day.AddDate(0, 0, -i).Format("2006-01-02")
		snap, err = b.store.GetSnapshot(ctx, earlier, models.PeriodDaily, accountID)
		if err == nil {
			return snap, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, fmt.Errorf("load snapshot %s: %w", earlier, err)
		}
	}
	return nil, false, ErrNoData
}

func (b *Builder) trendVsTrailingWeek(ctx context.Context, accountID string, snap *models.CostSnapshot) (float64, bool) {
	history, err := b.store.RecentSnapshots(ctx, accountID, snap.Date, 7)
	if err != nil || len(history) < 3 {
		return 0, false
	}
	var total float64
	for i := range history {
		total += history[i].TotalCost
	}
	avg := total / float64(len(history))
	if avg <= 0 {
		return 0, false
	}
	return (snap.TotalCost - avg) / avg * 100, true
}

// fromDate drops snapshots dated before start (snapshots arrive oldest
// first, so this trims the head).
func fromDate(snaps []models.CostSnapshot, start string) []models.CostSnapshot {
	for i := range snaps {
		if snaps[i].Date >= start {
			return snaps[i:]
		}
	}
	return nil
}

func topServices(costs map[string]float64, n int) []ServiceCost {
	out := make([]ServiceCost, 0, len(costs))
	for svc, cost := range costs {
		if cost > 0 {
			out = append(out, ServiceCost{Service: svc, Cost: cost})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost > out[j].Cost
		}
		return out[i].Service < out[j].Service
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
