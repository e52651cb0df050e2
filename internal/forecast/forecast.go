// Package forecast projects end-of-period spend from month-to-date totals
// and the baseline trend. Forecasts are advisory input to the detector's
// budget-deviation signal, never authoritative.
package forecast

import (
	"time"

	"github.com/costguard/costguard/internal/models"
)

// Input carries everything a projection needs.
type Input struct {
	// SpendToDate is the month-to-date spend in USD.
	SpendToDate float64

	// Trend is the baseline dollars-per-day slope; 0 means unavailable.
	Trend float64

	// ElapsedDays and TotalDays describe the position within the period.
	ElapsedDays int
	TotalDays   int

	// HistoryPeriods is how many historical periods back the trend; it
	// drives the confidence label.
	HistoryPeriods int
}

// EndOfMonth returns the projected total for the period, or nil when no
// projection is possible (nothing spent and nothing elapsed).
//
// With a trend available the projection extends the current spend linearly:
// spend + trend × remaining days. Without one it falls back to straight-line
// extrapolation of the elapsed fraction.
func EndOfMonth(in Input) *models.Forecast {
	if in.TotalDays <= 0 || in.ElapsedDays <= 0 {
		return nil
	}
	remaining := in.TotalDays - in.ElapsedDays

	var projected float64
	switch {
	case in.Trend != 0:
		projected = in.SpendToDate + in.Trend*float64(remaining)
	default:
		elapsedFraction := float64(in.ElapsedDays) / float64(in.TotalDays)
		projected = in.SpendToDate / elapsedFraction
	}
	if projected < in.SpendToDate {
		// A negative trend can project below what is already spent; spend
		// is monotone within a period.
		projected = in.SpendToDate
	}

	return &models.Forecast{
		EndOfMonth: projected,
		Confidence: confidence(in.HistoryPeriods),
	}
}

// confidence labels a projection by the depth of history behind it.
func confidence(periods int) models.ForecastConfidence {
	switch {
	case periods < 5:
		return models.ConfidenceLow
	case periods < 10:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceHigh
	}
}

// MonthPosition returns the elapsed and total day counts for the month
// containing date. Elapsed counts the current day as in progress.
func MonthPosition(date time.Time) (elapsed, total int) {
	first := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	next := first.AddDate(0, 1, 0)
	total = int(next.Sub(first).Hours() / 24)
	elapsed = date.Day()
	return elapsed, total
}
