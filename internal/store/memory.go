package store

import (
	"context"
	"sort"
	"sync"

	"github.com/costguard/costguard/internal/models"
)

// Memory is an in-process Store used by unit tests and --dry-run modes.
// It honors the same conditional-write semantics as the DynamoDB
// implementation, including version checks on change log updates.
type Memory struct {
	mu        sync.Mutex
	snapshots map[string]models.CostSnapshot   // key: date|period|account
	feedback  map[string]models.Feedback       // key: alert|user
	changes   map[string]models.ChangeLogEntry // key: service|date|changeID
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[string]models.CostSnapshot),
		feedback:  make(map[string]models.Feedback),
		changes:   make(map[string]models.ChangeLogEntry),
	}
}

func snapshotKey(date string, period models.PeriodType, accountID string) string {
	return date + "|" + string(period) + "|" + accountID
}

func (m *Memory) PutSnapshot(_ context.Context, snap *models.CostSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := snapshotKey(snap.Date, snap.PeriodType, snap.AccountID)
	if _, exists := m.snapshots[key]; exists {
		return ErrSnapshotExists
	}
	m.snapshots[key] = *snap
	return nil
}

func (m *Memory) GetSnapshot(_ context.Context, date string, period models.PeriodType, accountID string) (*models.CostSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.snapshots[snapshotKey(date, period, accountID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}

func (m *Memory) RecentSnapshots(_ context.Context, accountID, before string, days int) ([]models.CostSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.CostSnapshot
	for _, snap := range m.snapshots {
		if snap.AccountID != accountID || snap.PeriodType != models.PeriodDaily {
			continue
		}
		if snap.Date >= before {
			continue
		}
		out = append(out, snap)
	}
	// Oldest first; ISO dates sort lexicographically.
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	if days > 0 && len(out) > days {
		out = out[len(out)-days:]
	}
	return out, nil
}

func feedbackKey(alertID, userID string) string {
	return alertID + "|" + userID
}

func (m *Memory) PutFeedback(_ context.Context, fb *models.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := feedbackKey(fb.AlertID, fb.UserID)
	if _, exists := m.feedback[key]; exists {
		return ErrDuplicateFeedback
	}
	m.feedback[key] = *fb
	return nil
}

func (m *Memory) FeedbackForDate(_ context.Context, date string) ([]models.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Feedback
	for _, fb := range m.feedback {
		if fb.Date == date {
			out = append(out, fb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeedbackID < out[j].FeedbackID })
	return out, nil
}

func (m *Memory) FeedbackByUser(_ context.Context, userID string) ([]models.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Feedback
	for _, fb := range m.feedback {
		if fb.UserID == userID {
			out = append(out, fb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeedbackID < out[j].FeedbackID })
	return out, nil
}

func changeKey(entry *models.ChangeLogEntry) string {
	return entry.Service + "|" + entry.Date + "|" + entry.ChangeID
}

func (m *Memory) PutChange(_ context.Context, entry *models.ChangeLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.Version = 1
	m.changes[changeKey(entry)] = *entry
	return nil
}

func (m *Memory) UpdateChange(_ context.Context, entry *models.ChangeLogEntry, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := changeKey(entry)
	stored, ok := m.changes[key]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	entry.Version = expectedVersion + 1
	m.changes[key] = *entry
	return nil
}

func (m *Memory) ChangesForService(_ context.Context, service string) ([]models.ChangeLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ChangeLogEntry
	for _, entry := range m.changes {
		if entry.Service == service {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (m *Memory) ActiveChanges(_ context.Context) ([]models.ChangeLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ChangeLogEntry
	for _, entry := range m.changes {
		if entry.Status == models.ChangeActive {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

var _ Store = (*Memory)(nil)
