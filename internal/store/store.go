// Package store persists snapshots, feedback, and change log entries.
//
// The interface is deliberately narrow: read-by-key, range-query-by-date or
// service, and conditional writes. The production implementation is a
// single DynamoDB table; an in-memory implementation backs tests and dry
// runs. Components receive a Store handle explicitly — there is no ambient
// global state.
package store

import (
	"context"
	"errors"

	"github.com/costguard/costguard/internal/models"
)

var (
	// ErrNotFound is returned by point lookups that match nothing.
	ErrNotFound = errors.New("store: item not found")

	// ErrSnapshotExists is returned by PutSnapshot when a snapshot already
	// exists for the same (date, period, account). Re-running a collection
	// cycle must never double-append history.
	ErrSnapshotExists = errors.New("store: snapshot already exists for date")

	// ErrDuplicateFeedback is returned by PutFeedback when the same
	// (alert, user) pair already recorded feedback.
	ErrDuplicateFeedback = errors.New("store: duplicate feedback for alert and user")

	// ErrVersionConflict is returned by UpdateChange when the entry was
	// modified concurrently and the expected version no longer matches.
	ErrVersionConflict = errors.New("store: change log entry version conflict")
)

// Store is the persistence contract shared by the engine, the detector's
// suppression pass, and the feedback recorder.
type Store interface {
	// PutSnapshot writes a new snapshot conditionally: if one already
	// exists for the snapshot's (date, period, account) it returns
	// ErrSnapshotExists and writes nothing.
	PutSnapshot(ctx context.Context, snap *models.CostSnapshot) error

	// GetSnapshot returns the snapshot for (date, period, account), or
	// ErrNotFound.
	GetSnapshot(ctx context.Context, date string, period models.PeriodType, accountID string) (*models.CostSnapshot, error)

	// RecentSnapshots returns up to days daily snapshots for accountID
	// with dates strictly before the given date, ordered oldest first.
	// Missing days are simply absent; callers must not assume density.
	RecentSnapshots(ctx context.Context, accountID, before string, days int) ([]models.CostSnapshot, error)

	// PutFeedback writes feedback conditionally: if the (alert, user)
	// pair already has a record it returns ErrDuplicateFeedback.
	PutFeedback(ctx context.Context, fb *models.Feedback) error

	// FeedbackForDate returns all feedback recorded against alerts dated
	// date.
	FeedbackForDate(ctx context.Context, date string) ([]models.Feedback, error)

	// FeedbackByUser returns all feedback submitted by userID. Audit use
	// only; implementations may serve it with a scan.
	FeedbackByUser(ctx context.Context, userID string) ([]models.Feedback, error)

	// PutChange writes a brand-new change log entry. The entry's Version
	// is forced to 1.
	PutChange(ctx context.Context, entry *models.ChangeLogEntry) error

	// UpdateChange rewrites an existing entry conditionally on its stored
	// version matching expectedVersion; on success the stored version is
	// expectedVersion+1. A mismatch returns ErrVersionConflict.
	UpdateChange(ctx context.Context, entry *models.ChangeLogEntry, expectedVersion int64) error

	// ChangesForService returns every change log entry for service,
	// newest first.
	ChangesForService(ctx context.Context, service string) ([]models.ChangeLogEntry, error)

	// ActiveChanges returns every entry currently in the active state.
	ActiveChanges(ctx context.Context) ([]models.ChangeLogEntry, error)
}
