package detect

import (
	"fmt"

	"github.com/costguard/costguard/internal/models"
)

const stdDeviationSignalID = "STD_DEVIATION"

// StdDeviationSignal fires when a service's cost sits at least the configured
// number of sample standard deviations from its baseline mean. Only applies
// when the baseline has genuine variance; a flat history yields no z-score.
type StdDeviationSignal struct{}

func (s StdDeviationSignal) ID() string   { return stdDeviationSignalID }
func (s StdDeviationSignal) Name() string { return "Standard Deviation" }

func (s StdDeviationSignal) Evaluate(ctx Context) *Hit {
	if ctx.AccountLevel || ctx.CurrentCost < ctx.Config.MinimumCostForAnomaly {
		return nil
	}
	absChange, pctChange, stdDevs, ok := ctx.Deviation()
	if !ok || ctx.Baseline.StdDev <= 0 || stdDevs < ctx.Config.StdDevThreshold {
		return nil
	}

	return &Hit{
		Kind:     models.SignalStdDeviation,
		Severity: deviationSeverity(absChange, pctChange, stdDevs, ctx.Config),
		Reason: fmt.Sprintf("%.1f std devs >= %.1f",
			stdDevs, ctx.Config.StdDevThreshold),
	}
}
