// Package cost collects per-service spend from Cost Explorer. It is pure
// data plumbing: no thresholds, no baselines, no business rules.
package cost

import "context"

// DailyCosts is one calendar day of per-service spend.
type DailyCosts struct {
	// Date is the YYYY-MM-DD day the costs cover.
	Date string

	// ByService maps service name to that day's unblended cost in USD.
	// Services with zero cost are omitted.
	ByService map[string]float64

	// Total is the sum over ByService.
	Total float64
}

// Source provides cost data for the detection cycle. Implementations must
// bound their wait on ctx; a hung billing API must fail the cycle, not stall
// it.
type Source interface {
	// ServiceCosts returns the per-service costs for one day. A day the
	// billing API has no data for yet yields an empty ByService map, not an
	// error.
	ServiceCosts(ctx context.Context, date string) (*DailyCosts, error)

	// Range returns per-service daily costs for [start, end), ordered by
	// date ascending. Used by backfill.
	Range(ctx context.Context, start, end string) ([]DailyCosts, error)

	// MonthToDate returns the total spend from the first of date's month
	// through date inclusive.
	MonthToDate(ctx context.Context, date string) (float64, error)
}
