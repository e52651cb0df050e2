// Package engine orchestrates one detection cycle: collect costs, build the
// snapshot, detect and suppress anomalies, persist, and notify. The engine
// owns sequencing and idempotency; all domain math lives in the packages it
// coordinates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/costguard/costguard/internal/baseline"
	"github.com/costguard/costguard/internal/changelog"
	"github.com/costguard/costguard/internal/config"
	"github.com/costguard/costguard/internal/detect"
	"github.com/costguard/costguard/internal/forecast"
	"github.com/costguard/costguard/internal/llm"
	"github.com/costguard/costguard/internal/models"
	"github.com/costguard/costguard/internal/notify"
	"github.com/costguard/costguard/internal/providers/aws/cost"
	"github.com/costguard/costguard/internal/store"
)

// BudgetSource resolves the account's monthly budget limit. Implemented by
// the AWS Budgets collector; 0 means "none defined, use the configured
// fallback".
type BudgetSource interface {
	MonthlyBudget(ctx context.Context, accountID string) (float64, error)
}

// Engine wires one account's detection pipeline together.
type Engine struct {
	cfg       *config.Config
	store     store.Store
	source    cost.Source
	budgets   BudgetSource
	detector  *detect.Detector
	tracker   *changelog.Tracker
	notifier  notify.Notifier
	assistant llm.LLMClient
	accountID string
	now       func() time.Time
}

// Options carries the engine's collaborators. Notifier and Assistant may be
// nil for collection-only runs (backfill, dry runs).
type Options struct {
	Config    *config.Config
	Store     store.Store
	Source    cost.Source
	Budgets   BudgetSource
	Notifier  notify.Notifier
	Assistant llm.LLMClient
	AccountID string
}

// New assembles an Engine from opts.
func New(opts Options) *Engine {
	return &Engine{
		cfg:       opts.Config,
		store:     opts.Store,
		source:    opts.Source,
		budgets:   opts.Budgets,
		detector:  detect.New(&opts.Config.Detection),
		tracker:   changelog.New(opts.Store, &opts.Config.Detection),
		notifier:  opts.Notifier,
		assistant: opts.Assistant,
		accountID: opts.AccountID,
		now:       time.Now,
	}
}

// CycleResult summarises one detection cycle.
type CycleResult struct {
	Snapshot *models.CostSnapshot

	// Surfaced are the anomalies that survived suppression, in alert order.
	Surfaced   []models.Anomaly
	Suppressed int

	// AlreadyCollected marks an idempotent re-run: a snapshot for the date
	// existed and nothing was recomputed.
	AlreadyCollected bool

	// NoData marks a cycle where the billing API had nothing for the date
	// yet; nothing was persisted.
	NoData bool

	ChangeScan changelog.ScanResult

	// BudgetAlert is the severity of the budget alert sent, if any.
	BudgetAlert models.Severity
}

// RunCycle executes the full detection cycle for one calendar date.
// Re-running for an already-collected date is a no-op. Collection failures
// abort the cycle before anything is persisted; notification failures are
// reported but do not undo the persisted snapshot.
func (e *Engine) RunCycle(ctx context.Context, date string) (*CycleResult, error) {
	if _, err := e.store.GetSnapshot(ctx, date, models.PeriodDaily, e.accountID); err == nil {
		return &CycleResult{AlreadyCollected: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing snapshot: %w", err)
	}

	var (
		day         *cost.DailyCosts
		monthSpend  float64
		budgetLimit float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		day, err = e.source.ServiceCosts(gctx, date)
		return err
	})
	g.Go(func() error {
		var err error
		monthSpend, err = e.source.MonthToDate(gctx, date)
		return err
	})
	g.Go(func() error {
		var err error
		budgetLimit, err = e.budgets.MonthlyBudget(gctx, e.accountID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect costs for %s: %w", date, err)
	}

	if len(day.ByService) == 0 {
		// Billing data lags; the scheduler will try again later.
		return &CycleResult{NoData: true}, nil
	}

	history, err := e.store.RecentSnapshots(ctx, e.accountID, date, e.cfg.Detection.BaselineDays)
	if err != nil {
		return nil, fmt.Errorf("load baseline history: %w", err)
	}

	snap := e.buildSnapshot(date, day, monthSpend, budgetLimit, history)

	// Lifecycle scan first: entries resolved or expired by today's data must
	// not keep suppressing. The scan commits before the snapshot put below;
	// its transitions are date-driven and idempotent, so a run that loses the
	// put race leaves the change log exactly as the winning run does.
	scan, err := e.tracker.Scan(ctx, snap)
	if err != nil {
		return nil, err
	}

	anomalies := e.detector.Detect(snap, history)

	active, err := e.store.ActiveChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active changes: %w", err)
	}
	detect.Suppress(anomalies, active, e.cfg.Detection.SuppressionTolerancePoints)
	snap.AnomaliesDetected = anomalies

	if err := e.store.PutSnapshot(ctx, snap); err != nil {
		if errors.Is(err, store.ErrSnapshotExists) {
			// A concurrent run won the race; treat ours as the no-op re-run.
			return &CycleResult{AlreadyCollected: true}, nil
		}
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	surfaced := detect.Surfaced(anomalies)
	result := &CycleResult{
		Snapshot:   snap,
		Surfaced:   surfaced,
		Suppressed: len(anomalies) - len(surfaced),
		ChangeScan: scan,
	}

	var notifyErrs []error
	if severity, err := e.sendBudgetAlert(ctx, snap); err != nil {
		notifyErrs = append(notifyErrs, err)
	} else {
		result.BudgetAlert = severity
	}
	if err := e.sendAnomalyAlerts(ctx, snap, history, surfaced); err != nil {
		notifyErrs = append(notifyErrs, err)
	}
	return result, errors.Join(notifyErrs...)
}

// buildSnapshot assembles the complete snapshot, including budget status and
// forecast, before detection runs against it.
func (e *Engine) buildSnapshot(date string, day *cost.DailyCosts, monthSpend, budgetLimit float64, history []models.CostSnapshot) *models.CostSnapshot {
	now := e.now().UTC()

	snap := &models.CostSnapshot{
		SnapshotID:      uuid.NewString(),
		Timestamp:       now,
		AccountID:       e.accountID,
		Date:            date,
		PeriodType:      models.PeriodDaily,
		TotalCost:       day.Total,
		Currency:        "USD",
		CostByService:   day.ByService,
		RetentionExpiry: now.AddDate(0, 0, e.cfg.Storage.Retention.DailyDays).Unix(),
	}

	if budgetLimit <= 0 {
		budgetLimit = e.cfg.Budgets.MonthlyAmount
	}
	if budgetLimit > 0 {
		snap.BudgetStatus = &models.BudgetStatus{
			MonthlyBudget:  budgetLimit,
			MonthlySpent:   monthSpend,
			MonthlyPercent: monthSpend / budgetLimit * 100,
		}
	}

	if parsed, err := time.Parse("2006-01-02", date); err == nil {
		elapsed, total := forecast.MonthPosition(parsed)
		snap.Forecast = forecast.EndOfMonth(forecast.Input{
			SpendToDate:    monthSpend,
			Trend:          baseline.TotalFromSnapshots(history).Trend,
			ElapsedDays:    elapsed,
			TotalDays:      total,
			HistoryPeriods: len(history),
		})
	}
	return snap
}

// sendBudgetAlert notifies when monthly utilization crosses a configured
// threshold. One alert per date at most, because one cycle persists per date.
func (e *Engine) sendBudgetAlert(ctx context.Context, snap *models.CostSnapshot) (models.Severity, error) {
	if e.notifier == nil || snap.BudgetStatus == nil {
		return "", nil
	}
	bs := snap.BudgetStatus

	var severity models.Severity
	switch {
	case bs.MonthlyPercent >= e.cfg.Budgets.CriticalThresholdPercent:
		severity = models.SeverityCritical
	case bs.MonthlyPercent >= e.cfg.Budgets.WarningThresholdPercent:
		severity = models.SeverityWarning
	default:
		return "", nil
	}

	msg := notify.BudgetAlert(bs, severity, e.now())
	if err := e.notifier.Send(ctx, severity, msg); err != nil {
		return "", fmt.Errorf("send budget alert: %w", err)
	}
	return severity, nil
}

// sendAnomalyAlerts posts one message per surfaced anomaly, attaching the
// assistant's narrative when available. The assistant failing never blocks
// the alert.
func (e *Engine) sendAnomalyAlerts(ctx context.Context, snap *models.CostSnapshot, history []models.CostSnapshot, surfaced []models.Anomaly) error {
	if e.notifier == nil {
		return nil
	}

	var errs []error
	for i := range surfaced {
		a := &surfaced[i]

		var analysis string
		if e.assistant != nil && e.assistant.IsAvailable(ctx) {
			resp, err := e.assistant.AnalyzeAnomaly(ctx, llm.AnalysisRequest{
				Anomaly:       a,
				Snapshot:      snap,
				RecentHistory: serviceHistory(history, a.Service),
			})
			if err == nil {
				analysis = resp.Analysis
			}
		}

		msg := notify.AnomalyAlert(a, analysis, e.now())
		if err := e.notifier.Send(ctx, a.Severity, msg); err != nil {
			errs = append(errs, fmt.Errorf("send alert for %s: %w", a.Service, err))
		}
	}
	return errors.Join(errs...)
}

// BackfillResult summarises a backfill run.
type BackfillResult struct {
	Seeded  int
	Skipped int
}

// Backfill seeds snapshots for [start, end) from the billing API without
// running detection or notifications. Days that already have a snapshot are
// skipped, so backfill is safe to re-run over an overlapping range.
func (e *Engine) Backfill(ctx context.Context, start, end string) (*BackfillResult, error) {
	days, err := e.source.Range(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("collect range %s..%s: %w", start, end, err)
	}

	result := &BackfillResult{}
	now := e.now().UTC()
	for i := range days {
		day := &days[i]
		if len(day.ByService) == 0 {
			continue
		}
		snap := &models.CostSnapshot{
			SnapshotID:      uuid.NewString(),
			Timestamp:       now,
			AccountID:       e.accountID,
			Date:            day.Date,
			PeriodType:      models.PeriodDaily,
			TotalCost:       day.Total,
			Currency:        "USD",
			CostByService:   day.ByService,
			RetentionExpiry: now.AddDate(0, 0, e.cfg.Storage.Retention.DailyDays).Unix(),
		}
		if err := e.store.PutSnapshot(ctx, snap); err != nil {
			if errors.Is(err, store.ErrSnapshotExists) {
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("persist snapshot %s: %w", day.Date, err)
		}
		result.Seeded++
	}
	return result, nil
}

func serviceHistory(history []models.CostSnapshot, service string) []float64 {
	costs := make([]float64, 0, len(history))
	for i := range history {
		costs = append(costs, history[i].ServiceCost(service))
	}
	return costs
}
