// Package feedback records user classifications of raised alerts and closes
// the loop into the change log: an "expected, ongoing" answer becomes an
// active change that suppresses the same alert tomorrow.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/costguard/costguard/internal/changelog"
	"github.com/costguard/costguard/internal/config"
	"github.com/costguard/costguard/internal/models"
	"github.com/costguard/costguard/internal/store"
)

var (
	// ErrAlertNotFound is returned when the alert id does not match any
	// anomaly in the referenced snapshot.
	ErrAlertNotFound = errors.New("feedback: alert not found")

	// ErrDuplicateFeedback is returned when the same user already recorded
	// feedback for the same alert. At most one feedback per (alert, user).
	ErrDuplicateFeedback = errors.New("feedback: already recorded for this alert and user")

	// ErrConcurrentUpdate is returned when the change log upsert lost its
	// optimistic-concurrency race past the single retry.
	ErrConcurrentUpdate = changelog.ErrConcurrentUpdate
)

// Request is one feedback submission.
type Request struct {
	// AlertID identifies the anomaly being classified.
	AlertID string

	// Date and AccountID locate the daily snapshot the alert came from.
	Date      string
	AccountID string

	UserID   string
	UserName string

	FeedbackType models.FeedbackType
	DurationType models.DurationType

	// ExpectedDurationDays bounds a temporary change; ignored otherwise.
	ExpectedDurationDays int

	Explanation string
}

func (r *Request) validate() error {
	switch {
	case r.AlertID == "":
		return errors.New("feedback: alert id is required")
	case r.UserID == "":
		return errors.New("feedback: user id is required")
	case r.Date == "":
		return errors.New("feedback: alert date is required")
	}
	switch r.FeedbackType {
	case models.FeedbackExpected, models.FeedbackUnexpected, models.FeedbackInvestigating:
	default:
		return fmt.Errorf("feedback: unknown feedback type %q", r.FeedbackType)
	}
	switch r.DurationType {
	case models.DurationOneTime, models.DurationOngoing, models.DurationTemporary, models.DurationUnknown:
	default:
		return fmt.Errorf("feedback: unknown duration type %q", r.DurationType)
	}
	return nil
}

// Recorder is the single write path for feedback and, transitively, for
// feedback-created change log entries.
type Recorder struct {
	store   store.Store
	tracker *changelog.Tracker
	cfg     *config.Config
	now     func() time.Time
}

// NewRecorder returns a Recorder writing through st.
func NewRecorder(st store.Store, tracker *changelog.Tracker, cfg *config.Config) *Recorder {
	return &Recorder{store: st, tracker: tracker, cfg: cfg, now: time.Now}
}

// Record persists the submission and, for ongoing or temporary changes,
// upserts the service's change log entry. The feedback write is conditional:
// a second submission by the same user for the same alert returns
// ErrDuplicateFeedback and leaves the stored record untouched.
func (r *Recorder) Record(ctx context.Context, req Request) (*models.Feedback, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	anomaly, err := r.lookupAnomaly(ctx, req)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	fb := &models.Feedback{
		FeedbackID:           uuid.NewString(),
		AlertID:              req.AlertID,
		Timestamp:            now,
		Date:                 req.Date,
		UserID:               req.UserID,
		UserName:             req.UserName,
		FeedbackType:         req.FeedbackType,
		AffectedServices:     []string{anomaly.Service},
		CostImpact:           anomaly.Amount,
		DurationType:         req.DurationType,
		ExpectedDurationDays: req.ExpectedDurationDays,
		Explanation:          req.Explanation,
		RetentionExpiry:      now.AddDate(0, 0, r.cfg.Storage.Retention.DailyDays).Unix(),
	}

	if err := r.store.PutFeedback(ctx, fb); err != nil {
		if errors.Is(err, store.ErrDuplicateFeedback) {
			return nil, ErrDuplicateFeedback
		}
		return nil, fmt.Errorf("persist feedback: %w", err)
	}

	if req.DurationType.CreatesChangeLog() {
		if _, err := r.tracker.Upsert(ctx, anomaly, fb); err != nil {
			// The feedback itself is durably recorded; surface the change
			// log failure so the caller can retry the acknowledgment.
			return fb, fmt.Errorf("update change log: %w", err)
		}
	}
	return fb, nil
}

// lookupAnomaly finds the alert's anomaly in its snapshot. Suppressed
// anomalies are fair game: they are embedded for audit and users may still
// comment on them.
func (r *Recorder) lookupAnomaly(ctx context.Context, req Request) (*models.Anomaly, error) {
	snap, err := r.store.GetSnapshot(ctx, req.Date, models.PeriodDaily, req.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("load snapshot for %s: %w", req.Date, err)
	}
	for i := range snap.AnomaliesDetected {
		if snap.AnomaliesDetected[i].ID == req.AlertID {
			return &snap.AnomaliesDetected[i], nil
		}
	}
	return nil, ErrAlertNotFound
}
