package detect

import (
	"fmt"

	"github.com/costguard/costguard/internal/models"
)

const serviceDropSignalID = "SERVICE_DROP"

// ServiceDropSignal fires when a service that carried meaningful baseline
// cost stops incurring any. Usually good news (a teardown landed), sometimes
// a broken pipeline; either way worth a low-severity note.
type ServiceDropSignal struct{}

func (s ServiceDropSignal) ID() string   { return serviceDropSignalID }
func (s ServiceDropSignal) Name() string { return "Service Drop" }

func (s ServiceDropSignal) Evaluate(ctx Context) *Hit {
	if ctx.AccountLevel || !ctx.KnownService || !ctx.Config.AlertOnServiceDrop {
		return nil
	}
	if ctx.CurrentCost > 0 || !ctx.Baseline.HasEnoughData() {
		return nil
	}
	if ctx.Baseline.Mean < ctx.Config.MinimumCostForAnomaly {
		return nil
	}

	return &Hit{
		Kind:     models.SignalServiceDrop,
		Severity: models.SeverityInfo,
		Reason:   fmt.Sprintf("service stopped incurring cost (baseline $%.2f/day)", ctx.Baseline.Mean),
	}
}
