// Package changelog tracks human-acknowledged cost changes through their
// lifecycle: active until the cost returns to its pre-change level or the
// entry outlives its expected end date, then resolved or expired. Terminal
// entries are never reopened; a fresh shift gets a fresh entry.
package changelog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/costguard/costguard/internal/config"
	"github.com/costguard/costguard/internal/models"
	"github.com/costguard/costguard/internal/store"
)

// ErrConcurrentUpdate is returned when an entry update lost its version race
// twice in a row. The caller owns the retry-or-surface decision from there.
var ErrConcurrentUpdate = errors.New("changelog: entry updated concurrently")

// ErrTerminal is returned when a transition is attempted on a resolved or
// expired entry.
var ErrTerminal = errors.New("changelog: entry is in a terminal state")

// epsilonCost is the floor below which a pre-change baseline is treated as
// zero, making return-to-baseline resolution meaningless.
const epsilonCost = 0.01

// Tracker owns all change log transitions. Every mutation goes through the
// store's version-conditioned update with a single retry, so concurrent
// writers never silently overwrite each other.
type Tracker struct {
	store store.Store
	cfg   *config.DetectionConfig
	now   func() time.Time
}

// New returns a Tracker over st.
func New(st store.Store, cfg *config.DetectionConfig) *Tracker {
	return &Tracker{store: st, cfg: cfg, now: time.Now}
}

// EntryFromFeedback builds a fresh active entry for the anomaly a feedback
// acknowledged. ExpectedEndDate is set only for temporary changes with a
// stated duration; open-ended changes expire only by explicit resolution.
func EntryFromFeedback(a *models.Anomaly, fb *models.Feedback, now time.Time) *models.ChangeLogEntry {
	changeType := models.ChangeCostIncrease
	switch {
	case a.NewService:
		changeType = models.ChangeNewService
	case a.Amount < 0:
		changeType = models.ChangeCostDecrease
	}

	entry := &models.ChangeLogEntry{
		ChangeID:           uuid.NewString(),
		Service:            a.Service,
		Timestamp:          now,
		Date:               now.UTC().Format("2006-01-02"),
		ChangeType:         changeType,
		Status:             models.ChangeActive,
		Description:        fb.Explanation,
		BaselineCost:       a.BaselineCost,
		NewCost:            a.CurrentCost,
		PercentChange:      a.PercentChange,
		AcknowledgedBy:     fb.UserID,
		AcknowledgedAt:     now,
		RelatedFeedbackIDs: []string{fb.FeedbackID},
	}
	if fb.DurationType == models.DurationTemporary && fb.ExpectedDurationDays > 0 {
		end := now.UTC().AddDate(0, 0, fb.ExpectedDurationDays)
		entry.ExpectedEndDate = end.Format("2006-01-02")
	}
	return entry
}

// Upsert records an acknowledgment for the anomaly's service. Three cases:
//
//   - No active entry: create one.
//   - Active entry, magnitude within tolerance: append the feedback to the
//     existing entry.
//   - Active entry, magnitude past tolerance: the change materially worsened;
//     the old entry is resolved as superseded and a fresh one opens at the new
//     magnitude, preserving audit history rather than overwriting it.
//
// Updates are version-conditioned and retried once; a second conflict
// returns ErrConcurrentUpdate.
func (t *Tracker) Upsert(ctx context.Context, a *models.Anomaly, fb *models.Feedback) (*models.ChangeLogEntry, error) {
	existing, err := t.activeEntry(ctx, a.Service)
	if err != nil {
		return nil, err
	}
	now := t.now()

	if existing == nil {
		entry := EntryFromFeedback(a, fb, now)
		if err := t.store.PutChange(ctx, entry); err != nil {
			return nil, fmt.Errorf("create change for %s: %w", a.Service, err)
		}
		return entry, nil
	}

	if a.PercentChange > existing.PercentChange+t.cfg.SuppressionTolerancePoints {
		if err := t.resolveSuperseded(ctx, existing, a); err != nil {
			return nil, err
		}
		entry := EntryFromFeedback(a, fb, now)
		if err := t.store.PutChange(ctx, entry); err != nil {
			return nil, fmt.Errorf("create superseding change for %s: %w", a.Service, err)
		}
		return entry, nil
	}

	return t.update(ctx, existing, func(e *models.ChangeLogEntry) {
		e.RelatedFeedbackIDs = append(append([]string{}, e.RelatedFeedbackIDs...), fb.FeedbackID)
		e.NewCost = a.CurrentCost
	})
}

// Resolve explicitly closes an active entry on user request.
func (t *Tracker) Resolve(ctx context.Context, entry *models.ChangeLogEntry, notes string) error {
	if entry.Status.Terminal() {
		return ErrTerminal
	}
	_, err := t.update(ctx, entry, func(e *models.ChangeLogEntry) {
		e.Status = models.ChangeResolved
		e.ResolutionNotes = notes
	})
	return err
}

// ScanResult summarises one lifecycle scan.
type ScanResult struct {
	Scanned  int
	Resolved []models.ChangeLogEntry
	Expired  []models.ChangeLogEntry
}

// Scan walks every active entry and applies the two automatic transitions:
// resolution when the service's cost in current returned to its pre-change
// level (within the percent-change threshold), and expiry when today is past
// the expected end date plus the grace window. current may be nil, in which
// case only expiry applies.
func (t *Tracker) Scan(ctx context.Context, current *models.CostSnapshot) (ScanResult, error) {
	active, err := t.store.ActiveChanges(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("list active changes: %w", err)
	}

	result := ScanResult{Scanned: len(active)}
	today := t.now().UTC().Format("2006-01-02")

	for i := range active {
		entry := active[i]

		if current != nil && t.returnedToBaseline(&entry, current.ServiceCost(entry.Service)) {
			updated, err := t.update(ctx, &entry, func(e *models.ChangeLogEntry) {
				e.Status = models.ChangeResolved
				e.ResolutionNotes = fmt.Sprintf("cost returned to baseline $%.2f", e.BaselineCost)
			})
			if err != nil {
				return result, err
			}
			result.Resolved = append(result.Resolved, *updated)
			continue
		}

		if t.pastGrace(&entry, today) {
			updated, err := t.update(ctx, &entry, func(e *models.ChangeLogEntry) {
				e.Status = models.ChangeExpired
				e.ResolutionNotes = fmt.Sprintf("expired %d days past expected end %s",
					t.cfg.ChangeGraceDays, e.ExpectedEndDate)
			})
			if err != nil {
				return result, err
			}
			result.Expired = append(result.Expired, *updated)
		}
	}
	return result, nil
}

// returnedToBaseline reports whether currentCost sits within the
// percent-change threshold of the entry's pre-change cost. Entries opened
// against a zero baseline (new services) never auto-resolve this way.
func (t *Tracker) returnedToBaseline(entry *models.ChangeLogEntry, currentCost float64) bool {
	if entry.BaselineCost < epsilonCost {
		return false
	}
	deviation := math.Abs(currentCost-entry.BaselineCost) / entry.BaselineCost * 100
	return deviation <= t.cfg.PercentChangeThreshold
}

// pastGrace reports whether today is strictly past the entry's expected end
// date plus the grace window. Entries without an end date never expire.
func (t *Tracker) pastGrace(entry *models.ChangeLogEntry, today string) bool {
	if entry.ExpectedEndDate == "" {
		return false
	}
	end, err := time.Parse("2006-01-02", entry.ExpectedEndDate)
	if err != nil {
		return false
	}
	deadline := end.AddDate(0, 0, t.cfg.ChangeGraceDays).Format("2006-01-02")
	return today > deadline
}

// activeEntry returns the service's single active entry (newest if the store
// ever holds more than one), or nil.
func (t *Tracker) activeEntry(ctx context.Context, service string) (*models.ChangeLogEntry, error) {
	entries, err := t.store.ChangesForService(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("list changes for %s: %w", service, err)
	}
	for i := range entries {
		if entries[i].Status == models.ChangeActive {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// resolveSuperseded closes an entry that a materially larger change replaced.
func (t *Tracker) resolveSuperseded(ctx context.Context, entry *models.ChangeLogEntry, a *models.Anomaly) error {
	acknowledged := entry.PercentChange
	_, err := t.update(ctx, entry, func(e *models.ChangeLogEntry) {
		e.Status = models.ChangeResolved
		e.ResolutionNotes = fmt.Sprintf("superseded: change grew to %.0f%% (acknowledged %.0f%%)",
			a.PercentChange, acknowledged)
	})
	return err
}

// update applies mutate to a copy of entry and writes it conditioned on that
// copy's version. After a conflict the entry is re-read and mutate is
// re-applied on top of the winner's state, so the concurrent writer's fields
// survive the retry instead of being clobbered by the stale local copy. A
// second conflict returns ErrConcurrentUpdate.
func (t *Tracker) update(ctx context.Context, entry *models.ChangeLogEntry, mutate func(*models.ChangeLogEntry)) (*models.ChangeLogEntry, error) {
	updated := *entry
	mutate(&updated)
	err := t.store.UpdateChange(ctx, &updated, updated.Version)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, store.ErrVersionConflict) {
		return nil, fmt.Errorf("update change %s: %w", entry.ChangeID, err)
	}

	// Lost the race once: re-read the winner and re-apply on its state.
	entries, lerr := t.store.ChangesForService(ctx, entry.Service)
	if lerr != nil {
		return nil, fmt.Errorf("reload change %s: %w", entry.ChangeID, lerr)
	}
	for i := range entries {
		if entries[i].ChangeID != entry.ChangeID {
			continue
		}
		if entries[i].Status.Terminal() {
			// The concurrent writer closed it; nothing left to apply.
			return nil, ErrConcurrentUpdate
		}
		fresh := entries[i]
		mutate(&fresh)
		if rerr := t.store.UpdateChange(ctx, &fresh, fresh.Version); rerr != nil {
			if errors.Is(rerr, store.ErrVersionConflict) {
				return nil, ErrConcurrentUpdate
			}
			return nil, fmt.Errorf("update change %s: %w", entry.ChangeID, rerr)
		}
		return &fresh, nil
	}
	return nil, store.ErrNotFound
}
