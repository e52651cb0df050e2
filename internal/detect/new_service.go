package detect

import (
	"fmt"

	"github.com/costguard/costguard/internal/models"
)

const newServiceSignalID = "NEW_SERVICE"

// NewServiceSignal fires when a service with no presence in the baseline
// window starts incurring cost. The floor is deliberately low: a brand-new
// service is interesting at a dollar, long before the general anomaly
// minimum would notice it.
type NewServiceSignal struct{}

func (s NewServiceSignal) ID() string   { return newServiceSignalID }
func (s NewServiceSignal) Name() string { return "New Service" }

func (s NewServiceSignal) Evaluate(ctx Context) *Hit {
	if ctx.AccountLevel || ctx.KnownService || !ctx.Config.AlertOnNewServices {
		return nil
	}
	if ctx.CurrentCost < ctx.Config.NewServiceMinimum {
		return nil
	}

	// A new service is a 100% change by definition; its cost alone decides
	// whether that escalates past warning.
	return &Hit{
		Kind:     models.SignalNewService,
		Severity: deviationSeverity(ctx.CurrentCost, 100, 0, ctx.Config),
		Reason:   fmt.Sprintf("new service with $%.2f cost", ctx.CurrentCost),
	}
}
