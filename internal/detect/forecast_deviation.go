package detect

import (
	"fmt"

	"github.com/costguard/costguard/internal/models"
)

const forecastDeviationSignalID = "FORECAST_DEVIATION"

// criticalForecastPercent escalates a forecast breach from informational to
// warning once the projection clears this percentage of the budget.
const criticalForecastPercent = 125

// ForecastDeviationSignal fires on the account-level context when the
// projected end-of-month spend exceeds the configured percentage of the
// monthly budget. Forecasts are advisory, so a plain breach is informational
// and only a deep one escalates.
type ForecastDeviationSignal struct{}

func (s ForecastDeviationSignal) ID() string   { return forecastDeviationSignalID }
func (s ForecastDeviationSignal) Name() string { return "Forecast Deviation" }

func (s ForecastDeviationSignal) Evaluate(ctx Context) *Hit {
	if !ctx.AccountLevel || ctx.Forecast == nil || ctx.Budget == nil {
		return nil
	}
	if ctx.Budget.MonthlyBudget <= 0 {
		return nil
	}

	projectedPercent := ctx.Forecast.EndOfMonth / ctx.Budget.MonthlyBudget * 100
	if projectedPercent < ctx.Config.ForecastBudgetThresholdPercent {
		return nil
	}

	severity := models.SeverityInfo
	if projectedPercent > criticalForecastPercent {
		severity = models.SeverityWarning
	}

	return &Hit{
		Kind:     models.SignalForecastDeviation,
		Severity: severity,
		Reason: fmt.Sprintf("forecast $%.2f is %.0f%% of $%.2f budget (threshold %.0f%%)",
			ctx.Forecast.EndOfMonth, projectedPercent, ctx.Budget.MonthlyBudget,
			ctx.Config.ForecastBudgetThresholdPercent),
	}
}
