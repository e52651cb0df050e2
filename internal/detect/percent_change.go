package detect

import (
	"fmt"
	"math"

	"github.com/costguard/costguard/internal/models"
)

const percentChangeSignalID = "PERCENT_CHANGE"

// PercentChangeSignal fires when a service's cost deviates from its baseline
// mean by at least the configured percentage. Catches large relative swings
// on services too small for the absolute threshold.
type PercentChangeSignal struct{}

func (s PercentChangeSignal) ID() string   { return percentChangeSignalID }
func (s PercentChangeSignal) Name() string { return "Percent Change" }

func (s PercentChangeSignal) Evaluate(ctx Context) *Hit {
	if ctx.AccountLevel || ctx.CurrentCost < ctx.Config.MinimumCostForAnomaly {
		return nil
	}
	absChange, pctChange, stdDevs, ok := ctx.Deviation()
	if !ok || math.Abs(pctChange) < ctx.Config.PercentChangeThreshold {
		return nil
	}

	return &Hit{
		Kind:     models.SignalPercentChange,
		Severity: deviationSeverity(absChange, pctChange, stdDevs, ctx.Config),
		Reason: fmt.Sprintf("percent change %.0f%% >= %.0f%%",
			math.Abs(pctChange), ctx.Config.PercentChangeThreshold),
	}
}
