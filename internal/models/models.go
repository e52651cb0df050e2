package models

import "time"

// Severity represents the impact level of a detected anomaly.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank returns the numeric ordering of a severity (higher = more severe).
// Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Max returns the more severe of s and other.
func (s Severity) Max(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// SignalKind identifies which detection signal flagged an anomaly.
type SignalKind string

const (
	SignalAbsoluteThreshold SignalKind = "absolute_threshold"
	SignalPercentChange     SignalKind = "percent_change"
	SignalStdDeviation      SignalKind = "std_deviation"
	SignalNewService        SignalKind = "new_service"
	SignalForecastDeviation SignalKind = "forecast_deviation"
	SignalServiceDrop       SignalKind = "service_drop"
)

// PeriodType identifies the granularity a snapshot represents.
type PeriodType string

const (
	PeriodHourly PeriodType = "hourly"
	PeriodDaily  PeriodType = "daily"
	PeriodWeekly PeriodType = "weekly"
)

// Anomaly is a single detected cost deviation. It is the atomic output unit
// of the detector: multiple triggered signals on the same service collapse
// into one Anomaly carrying the maximum severity.
//
// Anomalies are immutable once attached to a snapshot. Feedback and change
// log entries reference them by ID but never own them.
type Anomaly struct {
	ID            string     `json:"id"`
	Service       string     `json:"service"`
	CurrentCost   float64    `json:"current_cost"`
	BaselineCost  float64    `json:"baseline_cost"`
	Amount        float64    `json:"amount"` // absolute delta vs baseline
	PercentChange float64    `json:"percent_change"`
	StdDeviations float64    `json:"std_deviations"`
	Severity      Severity   `json:"severity"`
	SignalKind    SignalKind `json:"signal_kind"` // strongest triggered signal
	Reason        string     `json:"reason"`
	NewService    bool       `json:"new_service,omitempty"`
	// Suppressed marks anomalies withheld from alerting because an active
	// change log entry already explains them. They stay embedded in the
	// snapshot for audit.
	Suppressed bool `json:"suppressed,omitempty"`
	// RelatedChangeID references the change log entry that explains (or
	// partially explains) this anomaly, when one exists.
	RelatedChangeID string `json:"related_change_id,omitempty"`
}

// BudgetStatus captures monthly budget utilization at snapshot time.
type BudgetStatus struct {
	MonthlyBudget  float64 `json:"monthly_budget"`
	MonthlySpent   float64 `json:"monthly_spent"`
	MonthlyPercent float64 `json:"monthly_percent"`
}

// ForecastConfidence labels how much history backs a forecast.
type ForecastConfidence string

const (
	ConfidenceLow    ForecastConfidence = "low"
	ConfidenceMedium ForecastConfidence = "medium"
	ConfidenceHigh   ForecastConfidence = "high"
)

// Forecast is the projected end-of-period spend. Advisory input to the
// forecast-deviation signal, never authoritative.
type Forecast struct {
	EndOfMonth float64            `json:"end_of_month"`
	Confidence ForecastConfidence `json:"confidence"`
}

// CostSnapshot is one collection cycle's persisted view of account costs.
// Snapshots are append-only: created once per cycle, never mutated after
// the cycle that created them completes, and expired per retention policy.
type CostSnapshot struct {
	SnapshotID string     `json:"snapshot_id"`
	Timestamp  time.Time  `json:"timestamp"`
	AccountID  string     `json:"account_id"`
	Date       string     `json:"date"` // YYYY-MM-DD the costs represent
	PeriodType PeriodType `json:"period_type"`

	TotalCost     float64            `json:"total_cost"`
	Currency      string             `json:"currency"`
	CostByService map[string]float64 `json:"cost_by_service"`

	BudgetStatus *BudgetStatus `json:"budget_status,omitempty"`
	Forecast     *Forecast     `json:"forecast,omitempty"`

	// AnomaliesDetected is ordered by severity desc, then absolute impact
	// desc, and includes suppressed anomalies for audit.
	AnomaliesDetected []Anomaly `json:"anomalies_detected,omitempty"`

	// RetentionExpiry is the unix time after which the store may drop this
	// snapshot. Zero means no expiry.
	RetentionExpiry int64 `json:"retention_expiry,omitempty"`
}

// ServiceCost returns the snapshot's cost for service (0 if absent).
func (s *CostSnapshot) ServiceCost(service string) float64 {
	return s.CostByService[service]
}

// FeedbackType is a user's classification of a raised alert.
type FeedbackType string

const (
	FeedbackExpected      FeedbackType = "expected"
	FeedbackUnexpected    FeedbackType = "unexpected"
	FeedbackInvestigating FeedbackType = "investigating"
)

// DurationType describes how long the user expects a cost change to last.
type DurationType string

const (
	DurationOneTime   DurationType = "one_time"
	DurationOngoing   DurationType = "ongoing"
	DurationTemporary DurationType = "temporary"
	DurationUnknown   DurationType = "unknown"
)

// CreatesChangeLog reports whether feedback with this duration should open
// a change log entry for future suppression.
func (d DurationType) CreatesChangeLog() bool {
	return d == DurationOngoing || d == DurationTemporary
}

// Feedback is a user's recorded classification of one alert. Immutable after
// creation; a later correction is a new Feedback, not an edit. At most one
// Feedback exists per (alert, user) pair.
type Feedback struct {
	FeedbackID string    `json:"feedback_id"`
	AlertID    string    `json:"alert_id"`
	Timestamp  time.Time `json:"timestamp"`
	Date       string    `json:"date"` // YYYY-MM-DD

	UserID       string       `json:"user_id"`
	UserName     string       `json:"user_name,omitempty"`
	FeedbackType FeedbackType `json:"feedback_type"`

	AffectedServices []string `json:"affected_services,omitempty"`
	CostImpact       float64  `json:"cost_impact"`

	DurationType         DurationType `json:"duration_type"`
	ExpectedDurationDays int          `json:"expected_duration_days,omitempty"`
	Explanation          string       `json:"explanation,omitempty"`

	RetentionExpiry int64 `json:"retention_expiry,omitempty"`
}

// ChangeStatus is the lifecycle state of a tracked cost change.
type ChangeStatus string

const (
	ChangeActive   ChangeStatus = "active"
	ChangeResolved ChangeStatus = "resolved"
	ChangeExpired  ChangeStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s ChangeStatus) Terminal() bool {
	return s == ChangeResolved || s == ChangeExpired
}

// ChangeType categorises a tracked cost change.
type ChangeType string

const (
	ChangeNewService   ChangeType = "new_service"
	ChangeCostIncrease ChangeType = "cost_increase"
	ChangeCostDecrease ChangeType = "cost_decrease"
	ChangeUsagePattern ChangeType = "usage_pattern"
)

// ChangeLogEntry is a human-acknowledged, time-bounded explanation for an
// ongoing cost shift in one service. One logical row per service; a material
// magnitude update supersedes the entry (old resolved, new created) so audit
// history is preserved rather than overwritten.
type ChangeLogEntry struct {
	ChangeID  string    `json:"change_id"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Date      string    `json:"date"` // YYYY-MM-DD the entry was opened

	ChangeType  ChangeType   `json:"change_type"`
	Status      ChangeStatus `json:"status"`
	Description string       `json:"description,omitempty"`

	BaselineCost  float64 `json:"baseline_cost"` // pre-change cost
	NewCost       float64 `json:"new_cost"`
	PercentChange float64 `json:"percent_change"` // acknowledged magnitude

	AcknowledgedBy string    `json:"acknowledged_by"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`

	ExpectedEndDate    string   `json:"expected_end_date,omitempty"` // YYYY-MM-DD
	ResolutionNotes    string   `json:"resolution_notes,omitempty"`
	RelatedFeedbackIDs []string `json:"related_feedback_ids,omitempty"`

	// Version supports optimistic concurrency on updates. Incremented on
	// every successful write; conditional updates must match it.
	Version int64 `json:"version"`

	RetentionExpiry int64 `json:"retention_expiry,omitempty"`
}
