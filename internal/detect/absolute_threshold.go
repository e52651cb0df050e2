package detect

import (
	"fmt"
	"math"

	"github.com/costguard/costguard/internal/models"
)

const absoluteThresholdSignalID = "ABSOLUTE_THRESHOLD"

// AbsoluteThresholdSignal fires when a service's cost moved away from its
// baseline mean by at least the configured dollar amount, regardless of how
// volatile the service normally is.
type AbsoluteThresholdSignal struct{}

func (s AbsoluteThresholdSignal) ID() string   { return absoluteThresholdSignalID }
func (s AbsoluteThresholdSignal) Name() string { return "Absolute Threshold" }

func (s AbsoluteThresholdSignal) Evaluate(ctx Context) *Hit {
	if ctx.AccountLevel || ctx.CurrentCost < ctx.Config.MinimumCostForAnomaly {
		return nil
	}
	absChange, pctChange, stdDevs, ok := ctx.Deviation()
	if !ok || math.Abs(absChange) < ctx.Config.AbsoluteThreshold {
		return nil
	}

	return &Hit{
		Kind:     models.SignalAbsoluteThreshold,
		Severity: deviationSeverity(absChange, pctChange, stdDevs, ctx.Config),
		Reason: fmt.Sprintf("absolute change $%.2f >= $%.2f",
			math.Abs(absChange), ctx.Config.AbsoluteThreshold),
	}
}
