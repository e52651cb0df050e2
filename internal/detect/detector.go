package detect

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/costguard/costguard/internal/baseline"
	"github.com/costguard/costguard/internal/config"
	"github.com/costguard/costguard/internal/models"
)

// AccountService is the service name carried by account-level anomalies,
// which have no single service behind them.
const AccountService = "account"

// Detector evaluates snapshots against their history with every registered
// signal and folds the results into anomalies.
type Detector struct {
	cfg      *config.DetectionConfig
	registry *Registry
}

// New returns a Detector with the default signal set registered in its
// canonical order.
func New(cfg *config.DetectionConfig) *Detector {
	r := NewRegistry()
	r.Register(AbsoluteThresholdSignal{})
	r.Register(PercentChangeSignal{})
	r.Register(StdDeviationSignal{})
	r.Register(NewServiceSignal{})
	r.Register(ServiceDropSignal{})
	r.Register(ForecastDeviationSignal{})
	return &Detector{cfg: cfg, registry: r}
}

// Detect evaluates current against history (daily snapshots, oldest first)
// and returns the detected anomalies ordered by severity, then absolute
// impact, descending. Suppression is a separate pass; every returned anomaly
// starts unsuppressed.
func (d *Detector) Detect(current *models.CostSnapshot, history []models.CostSnapshot) []models.Anomaly {
	if !d.cfg.Enabled {
		return nil
	}

	historical := baseline.Services(history)

	// Evaluate the union of current and historical services so drops are
	// seen too.
	services := make(map[string]struct{}, len(current.CostByService)+len(historical))
	for svc := range current.CostByService {
		services[svc] = struct{}{}
	}
	for svc := range historical {
		services[svc] = struct{}{}
	}

	var anomalies []models.Anomaly
	for svc := range services {
		_, known := historical[svc]
		ctx := Context{
			Service:      svc,
			CurrentCost:  current.ServiceCost(svc),
			KnownService: known,
			Config:       d.cfg,
		}
		if known {
			ctx.Baseline = baseline.FromSnapshots(history, svc)
		}
		if a := d.merge(ctx, d.registry.EvaluateAll(ctx)); a != nil {
			anomalies = append(anomalies, *a)
		}
	}

	if a := d.detectAccountLevel(current); a != nil {
		anomalies = append(anomalies, *a)
	}

	anomalies = d.filterMinimumImpact(anomalies)
	sortAnomalies(anomalies)
	return anomalies
}

// detectAccountLevel runs the aggregate-only signals (forecast deviation)
// against the snapshot's forecast and budget status.
func (d *Detector) detectAccountLevel(current *models.CostSnapshot) *models.Anomaly {
	ctx := Context{
		Service:      AccountService,
		AccountLevel: true,
		Forecast:     current.Forecast,
		Budget:       current.BudgetStatus,
		Config:       d.cfg,
	}
	hits := d.registry.EvaluateAll(ctx)
	if len(hits) == 0 {
		return nil
	}

	strongest, severity := fold(hits)
	budget := ctx.Budget.MonthlyBudget
	projected := ctx.Forecast.EndOfMonth
	return &models.Anomaly{
		ID:            uuid.NewString(),
		Service:       AccountService,
		CurrentCost:   round2(projected),
		BaselineCost:  round2(budget),
		Amount:        round2(projected - budget),
		PercentChange: round1((projected - budget) / budget * 100),
		Severity:      severity,
		SignalKind:    strongest,
		Reason:        joinReasons(hits),
	}
}

// merge folds the hits for one service into a single Anomaly, or nil when
// nothing fired.
func (d *Detector) merge(ctx Context, hits []Hit) *models.Anomaly {
	if len(hits) == 0 {
		return nil
	}

	strongest, severity := fold(hits)

	a := &models.Anomaly{
		ID:          uuid.NewString(),
		Service:     ctx.Service,
		CurrentCost: round2(ctx.CurrentCost),
		Severity:    severity,
		SignalKind:  strongest,
		Reason:      joinReasons(hits),
	}

	switch strongest {
	case models.SignalNewService:
		a.NewService = true
		a.BaselineCost = 0
		a.Amount = round2(ctx.CurrentCost)
		a.PercentChange = 100
	case models.SignalServiceDrop:
		a.BaselineCost = round2(ctx.Baseline.Mean)
		a.Amount = round2(-ctx.Baseline.Mean)
		a.PercentChange = -100
	default:
		absChange, pctChange, stdDevs, _ := ctx.Deviation()
		a.BaselineCost = round2(ctx.Baseline.Mean)
		a.Amount = round2(absChange)
		a.PercentChange = round1(pctChange)
		a.StdDeviations = round1(stdDevs)
	}
	return a
}

// fold reduces hits to the maximum severity and the kind of the strongest
// hit. Ties resolve to the earliest-registered signal, keeping the fold
// deterministic.
func fold(hits []Hit) (models.SignalKind, models.Severity) {
	strongest := hits[0]
	for _, h := range hits[1:] {
		if h.Severity.Rank() > strongest.Severity.Rank() {
			strongest = h
		}
	}
	severity := strongest.Severity
	for _, h := range hits {
		severity = severity.Max(h.Severity)
	}
	return strongest.Kind, severity
}

func joinReasons(hits []Hit) string {
	reasons := make([]string, 0, len(hits))
	for _, h := range hits {
		reasons = append(reasons, h.Reason)
	}
	return strings.Join(reasons, "; ")
}

// filterMinimumImpact drops anomalies whose absolute impact is below the
// configured floor. New-service anomalies already passed their own minimum.
func (d *Detector) filterMinimumImpact(anomalies []models.Anomaly) []models.Anomaly {
	out := anomalies[:0]
	for _, a := range anomalies {
		if !a.NewService && math.Abs(a.Amount) < d.cfg.MinimumCostForAnomaly {
			continue
		}
		out = append(out, a)
	}
	return out
}

// sortAnomalies orders by severity descending, then absolute impact
// descending, then service name for a stable total order.
func sortAnomalies(anomalies []models.Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		a, b := anomalies[i], anomalies[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		ai, bi := math.Abs(a.Amount), math.Abs(b.Amount)
		if ai != bi {
			return ai > bi
		}
		return a.Service < b.Service
	})
}

// deviationSeverity labels a deviation hit. The escalation thresholds are
// fixed: a four-sigma move, a doubling, or twice the absolute threshold is
// critical; anything that fired at all is at least a warning.
func deviationSeverity(absChange, pctChange, stdDevs float64, cfg *config.DetectionConfig) models.Severity {
	switch {
	case stdDevs >= 4,
		math.Abs(pctChange) >= 100,
		math.Abs(absChange) >= 2*cfg.AbsoluteThreshold:
		return models.SeverityCritical
	default:
		return models.SeverityWarning
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
