// Package detect evaluates a cost snapshot against its baseline history
// using independent signals and folds the triggered signals into per-service
// anomalies. It also applies the feedback-aware suppression pass that
// withholds anomalies already explained by an acknowledged change.
package detect

import (
	"fmt"
	"math"

	"github.com/costguard/costguard/internal/baseline"
	"github.com/costguard/costguard/internal/config"
	"github.com/costguard/costguard/internal/models"
)

// epsilonMean is the floor below which a baseline mean is treated as zero.
// Percent change against a near-zero mean is meaningless noise.
const epsilonMean = 0.01

// Context carries everything a signal needs to evaluate one service (or the
// account aggregate). It is the sole input to Signal.Evaluate; signals must
// never make network calls or read external state.
type Context struct {
	// Service is the service being evaluated; empty for the account-level
	// context.
	Service string

	// CurrentCost is today's cost for the service.
	CurrentCost float64

	// Baseline summarises the service's bounded history. Zero value when the
	// service has no history.
	Baseline baseline.Baseline

	// KnownService reports whether the service appeared anywhere in the
	// baseline window.
	KnownService bool

	// AccountLevel marks the single aggregate context used by the forecast
	// signal. Per-service signals must ignore it.
	AccountLevel bool

	// Forecast and Budget are set on the account-level context only. Either
	// may be nil when unavailable.
	Forecast *models.Forecast
	Budget   *models.BudgetStatus

	// Config holds the active detection thresholds. Never nil.
	Config *config.DetectionConfig
}

// Deviation returns the absolute, percentage, and standard-deviation distance
// of the current cost from the baseline mean. ok is false when the baseline
// is too thin (or its mean too close to zero) for deviation math.
func (c Context) Deviation() (absChange, pctChange, stdDevs float64, ok bool) {
	if !c.KnownService || !c.Baseline.HasEnoughData() || c.Baseline.Mean < epsilonMean {
		return 0, 0, 0, false
	}
	absChange = c.CurrentCost - c.Baseline.Mean
	pctChange = absChange / c.Baseline.Mean * 100
	if c.Baseline.StdDev > 0 {
		stdDevs = math.Abs(absChange) / c.Baseline.StdDev
	}
	return absChange, pctChange, stdDevs, true
}

// Hit is one signal's positive result. Signals that do not fire return nil.
type Hit struct {
	Kind     models.SignalKind
	Severity models.Severity
	Reason   string
}

// Signal is a single deterministic detection signal.
// Signals must be stateless and safe to call concurrently.
type Signal interface {
	// ID returns the unique, stable identifier for this signal
	// (e.g. "ABSOLUTE_THRESHOLD").
	ID() string

	// Name returns a short human-readable signal name.
	Name() string

	// Evaluate inspects the context and returns a Hit, or nil when the
	// signal does not fire.
	Evaluate(ctx Context) *Hit
}

// Registry is a simple, ordered, in-memory signal registry.
// Signals are evaluated in registration order.
// Register panics on duplicate IDs to catch wiring mistakes at startup.
type Registry struct {
	signals []Signal
	index   map[string]struct{}
}

// NewRegistry returns an empty registry ready for signal registration.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]struct{})}
}

// Register adds signal to the registry. Panics if the same ID is registered
// twice.
func (r *Registry) Register(signal Signal) {
	if _, exists := r.index[signal.ID()]; exists {
		panic(fmt.Sprintf("duplicate signal ID: %q", signal.ID()))
	}
	r.signals = append(r.signals, signal)
	r.index[signal.ID()] = struct{}{}
}

// All returns all registered signals in registration order.
func (r *Registry) All() []Signal {
	return r.signals
}

// EvaluateAll runs every registered signal against ctx and returns the hits
// in registration order.
func (r *Registry) EvaluateAll(ctx Context) []Hit {
	var hits []Hit
	for _, signal := range r.signals {
		if h := signal.Evaluate(ctx); h != nil {
			hits = append(hits, *h)
		}
	}
	return hits
}
