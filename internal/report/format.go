package report

import (
	"fmt"
	"strings"

	"github.com/costguard/costguard/internal/notify"
)

// DailyMessage renders a Daily summary as a webhook payload.
func DailyMessage(d *Daily) *notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "*:bar_chart: Daily Cost Report — %s*\n", d.Date)
	if d.UsedFallback {
		b.WriteString("_Billing data for the requested day was not ready; showing the latest available day._\n")
	}
	fmt.Fprintf(&b, "Total: *$%.2f*", d.TotalCost)
	if d.TrendPercent != nil {
		fmt.Fprintf(&b, " (%+.0f%% vs trailing 7-day average)", *d.TrendPercent)
	}
	b.WriteString("\n")

	if len(d.TopServices) > 0 {
		b.WriteString("\n*Top services:*\n")
		for _, sc := range d.TopServices {
			fmt.Fprintf(&b, "• %s — $%.2f\n", sc.Service, sc.Cost)
		}
	}

	if d.BudgetStatus != nil {
		fmt.Fprintf(&b, "\n*Budget:* $%.2f of $%.2f (%.0f%%)\n",
			d.BudgetStatus.MonthlySpent, d.BudgetStatus.MonthlyBudget, d.BudgetStatus.MonthlyPercent)
	}
	if d.Forecast != nil {
		fmt.Fprintf(&b, "*Forecast:* $%.2f end of month (%s confidence)\n",
			d.Forecast.EndOfMonth, d.Forecast.Confidence)
	}

	switch {
	case d.AnomalyCount > 0:
		fmt.Fprintf(&b, "\n:warning: %d anomalies (%d critical)", d.AnomalyCount, d.CriticalCount)
		if d.SuppressedHint > 0 {
			fmt.Fprintf(&b, ", %d suppressed as already explained", d.SuppressedHint)
		}
	case d.SuppressedHint > 0:
		fmt.Fprintf(&b, "\n:white_check_mark: no new anomalies (%d suppressed as already explained)", d.SuppressedHint)
	default:
		b.WriteString("\n:white_check_mark: no anomalies")
	}

	return notify.SimpleMessage(b.String())
}

// WeeklyMessage renders a Weekly summary as a webhook payload.
func WeeklyMessage(w *Weekly) *notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "*:calendar: Weekly Cost Report — %s to %s*\n", w.StartDate, w.EndDate)
	fmt.Fprintf(&b, "Total: *$%.2f* across %d days ($%.2f/day average)", w.TotalCost, w.Days, w.DailyAverage)
	if w.WeekOverWeekPercent != nil {
		fmt.Fprintf(&b, "\nWeek over week: %+.0f%%", *w.WeekOverWeekPercent)
	}
	b.WriteString("\n")

	if len(w.TopServices) > 0 {
		b.WriteString("\n*Top services this week:*\n")
		for _, sc := range w.TopServices {
			fmt.Fprintf(&b, "• %s — $%.2f\n", sc.Service, sc.Cost)
		}
	}

	if w.BudgetStatus != nil {
		fmt.Fprintf(&b, "\n*Budget:* $%.2f of $%.2f (%.0f%%)\n",
			w.BudgetStatus.MonthlySpent, w.BudgetStatus.MonthlyBudget, w.BudgetStatus.MonthlyPercent)
	}
	if w.Forecast != nil {
		fmt.Fprintf(&b, "*Forecast:* $%.2f end of month (%s confidence)\n",
			w.Forecast.EndOfMonth, w.Forecast.Confidence)
	}

	if w.AnomalyCount > 0 {
		fmt.Fprintf(&b, "\n:warning: %d anomalies this week (%d critical)", w.AnomalyCount, w.CriticalCount)
	} else {
		b.WriteString("\n:white_check_mark: no anomalies this week")
	}

	return notify.SimpleMessage(b.String())
}
