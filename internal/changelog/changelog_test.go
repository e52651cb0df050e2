package changelog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/costguard/costguard/internal/config"
	"github.com/costguard/costguard/internal/models"
	"github.com/costguard/costguard/internal/store"
)

func newTracker(t *testing.T, day string) (*Tracker, *store.Memory) {
	t.Helper()
	cfg := config.Default()
	mem := store.NewMemory()
	tr := New(mem, &cfg.Detection)
	fixed, err := time.Parse("2006-01-02", day)
	if err != nil {
		t.Fatal(err)
	}
	tr.now = func() time.Time { return fixed }
	return tr, mem
}

func spikeAnomaly(service string, pct float64) *models.Anomaly {
	return &models.Anomaly{
		ID:            "alert-1",
		Service:       service,
		CurrentCost:   200,
		BaselineCost:  100,
		Amount:        100,
		PercentChange: pct,
		Severity:      models.SeverityCritical,
		SignalKind:    models.SignalPercentChange,
	}
}

func expectedFeedback(id string, duration models.DurationType, days int) *models.Feedback {
	return &models.Feedback{
		FeedbackID:           id,
		AlertID:              "alert-1",
		Date:                 "2025-08-15",
		UserID:               "U123",
		FeedbackType:         models.FeedbackExpected,
		DurationType:         duration,
		ExpectedDurationDays: days,
		Explanation:          "load test",
	}
}

func TestUpsert_CreatesActiveEntry(t *testing.T) {
	tr, _ := newTracker(t, "2025-08-15")

	entry, err := tr.Upsert(context.Background(), spikeAnomaly("AmazonEC2", 100), expectedFeedback("fb-1", models.DurationTemporary, 14))
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != models.ChangeActive {
		t.Errorf("Status = %q; want active", entry.Status)
	}
	if entry.Version != 1 {
		t.Errorf("Version = %d; want 1", entry.Version)
	}
	if entry.ExpectedEndDate != "2025-08-29" {
		t.Errorf("ExpectedEndDate = %q; want 2025-08-29", entry.ExpectedEndDate)
	}
	if len(entry.RelatedFeedbackIDs) != 1 || entry.RelatedFeedbackIDs[0] != "fb-1" {
		t.Errorf("RelatedFeedbackIDs = %v; want [fb-1]", entry.RelatedFeedbackIDs)
	}
	if entry.ChangeType != models.ChangeCostIncrease {
		t.Errorf("ChangeType = %q; want cost_increase", entry.ChangeType)
	}
}

func TestUpsert_OngoingHasNoEndDate(t *testing.T) {
	tr, _ := newTracker(t, "2025-08-15")
	entry, err := tr.Upsert(context.Background(), spikeAnomaly("AmazonEC2", 100), expectedFeedback("fb-1", models.DurationOngoing, 0))
	if err != nil {
		t.Fatal(err)
	}
	if entry.ExpectedEndDate != "" {
		t.Errorf("ExpectedEndDate = %q; want none for ongoing changes", entry.ExpectedEndDate)
	}
}

func TestUpsert_WithinToleranceAppendsFeedback(t *testing.T) {
	tr, _ := newTracker(t, "2025-08-15")
	ctx := context.Background()

	first, err := tr.Upsert(ctx, spikeAnomaly("AmazonEC2", 100), expectedFeedback("fb-1", models.DurationOngoing, 0))
	if err != nil {
		t.Fatal(err)
	}
	second, err := tr.Upsert(ctx, spikeAnomaly("AmazonEC2", 110), expectedFeedback("fb-2", models.DurationOngoing, 0))
	if err != nil {
		t.Fatal(err)
	}

	if second.ChangeID != first.ChangeID {
		t.Error("a within-tolerance acknowledgment must reuse the existing entry")
	}
	if len(second.RelatedFeedbackIDs) != 2 {
		t.Errorf("RelatedFeedbackIDs = %v; want both feedback ids", second.RelatedFeedbackIDs)
	}
	if second.Version != 2 {
		t.Errorf("Version = %d; want 2 after one update", second.Version)
	}
}

func TestUpsert_PastToleranceSupersedes(t *testing.T) {
	tr, mem := newTracker(t, "2025-08-15")
	ctx := context.Background()

	first, err := tr.Upsert(ctx, spikeAnomaly("AmazonEC2", 100), expectedFeedback("fb-1", models.DurationOngoing, 0))
	if err != nil {
		t.Fatal(err)
	}
	second, err := tr.Upsert(ctx, spikeAnomaly("AmazonEC2", 140), expectedFeedback("fb-2", models.DurationOngoing, 0))
	if err != nil {
		t.Fatal(err)
	}

	if second.ChangeID == first.ChangeID {
		t.Fatal("a materially larger change must open a fresh entry")
	}
	if second.PercentChange != 140 {
		t.Errorf("new entry PercentChange = %v; want 140", second.PercentChange)
	}

	entries, err := mem.ChangesForService(ctx, "AmazonEC2")
	if err != nil {
		t.Fatal(err)
	}
	var old *models.ChangeLogEntry
	for i := range entries {
		if entries[i].ChangeID == first.ChangeID {
			old = &entries[i]
		}
	}
	if old == nil {
		t.Fatal("superseded entry must remain for audit")
	}
	if old.Status != models.ChangeResolved {
		t.Errorf("superseded entry Status = %q; want resolved", old.Status)
	}
	if !strings.Contains(old.ResolutionNotes, "superseded") {
		t.Errorf("ResolutionNotes = %q; want supersession recorded", old.ResolutionNotes)
	}

	active, err := mem.ActiveChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ChangeID != second.ChangeID {
		t.Errorf("active entries = %+v; want only the superseding one", active)
	}
}

func TestScan_ResolvesWhenCostReturns(t *testing.T) {
	tr, mem := newTracker(t, "2025-08-20")
	ctx := context.Background()

	if _, err := tr.Upsert(ctx, spikeAnomaly("AmazonEC2", 100), expectedFeedback("fb-1", models.DurationOngoing, 0)); err != nil {
		t.Fatal(err)
	}

	// Cost back at $110 against a $100 pre-change baseline: within the 50%
	// threshold, so the change is over.
	snap := &models.CostSnapshot{
		Date:          "2025-08-20",
		PeriodType:    models.PeriodDaily,
		CostByService: map[string]float64{"AmazonEC2": 110},
	}
	result, err := tr.Scan(ctx, snap)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Resolved) != 1 {
		t.Fatalf("Resolved = %+v; want one entry", result.Resolved)
	}
	if result.Resolved[0].Status != models.ChangeResolved {
		t.Errorf("Status = %q; want resolved", result.Resolved[0].Status)
	}

	active, err := mem.ActiveChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("active entries = %+v; want none after resolution", active)
	}
}

func TestScan_StillElevatedStaysActive(t *testing.T) {
	tr, mem := newTracker(t, "2025-08-20")
	ctx := context.Background()

	if _, err := tr.Upsert(ctx, spikeAnomaly("AmazonEC2", 100), expectedFeedback("fb-1", models.DurationOngoing, 0)); err != nil {
		t.Fatal(err)
	}

	snap := &models.CostSnapshot{
		Date:          "2025-08-20",
		PeriodType:    models.PeriodDaily,
		CostByService: map[string]float64{"AmazonEC2": 200},
	}
	result, err := tr.Scan(ctx, snap)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Resolved) != 0 || len(result.Expired) != 0 {
		t.Fatalf("result = %+v; want no transitions", result)
	}

	active, err := mem.ActiveChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Errorf("active entries = %+v; want the entry untouched", active)
	}
}

func TestScan_ExpiryRespectsGrace(t *testing.T) {
	ctx := context.Background()

	t.Run("inside grace stays active", func(t *testing.T) {
		// End date 10 days ago with a 30-day grace: still active.
		tr, mem := newTracker(t, "2025-08-15")
		if _, err := tr.Upsert(ctx, spikeAnomaly("AmazonEC2", 100), expectedFeedback("fb-1", models.DurationTemporary, 14)); err != nil {
			t.Fatal(err)
		}
		later, _ := time.Parse("2006-01-02", "2025-09-08") // end 2025-08-29 + 10d
		tr.now = func() time.Time { return later }

		result, err := tr.Scan(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(result.Expired) != 0 {
			t.Fatalf("Expired = %+v; want none inside the grace window", result.Expired)
		}
		active, _ := mem.ActiveChanges(ctx)
		if len(active) != 1 {
			t.Errorf("active entries = %+v; want one", active)
		}
	})

	t.Run("past grace expires", func(t *testing.T) {
		tr, mem := newTracker(t, "2025-08-15")
		if _, err := tr.Upsert(ctx, spikeAnomaly("AmazonEC2", 100), expectedFeedback("fb-1", models.DurationTemporary, 14)); err != nil {
			t.Fatal(err)
		}
		later, _ := time.Parse("2006-01-02", "2025-10-01") // end 2025-08-29 + 33d
		tr.now = func() time.Time { return later }

		result, err := tr.Scan(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(result.Expired) != 1 {
			t.Fatalf("Expired = %+v; want one entry", result.Expired)
		}
		active, _ := mem.ActiveChanges(ctx)
		if len(active) != 0 {
			t.Errorf("active entries = %+v; want none", active)
		}
	})

	t.Run("no end date never expires", func(t *testing.T) {
		tr, mem := newTracker(t, "2025-08-15")
		if _, err := tr.Upsert(ctx, spikeAnomaly("AmazonEC2", 100), expectedFeedback("fb-1", models.DurationOngoing, 0)); err != nil {
			t.Fatal(err)
		}
		later, _ := time.Parse("2006-01-02", "2026-08-15")
		tr.now = func() time.Time { return later }

		result, err := tr.Scan(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(result.Expired) != 0 {
			t.Fatalf("Expired = %+v; want none for open-ended changes", result.Expired)
		}
		active, _ := mem.ActiveChanges(ctx)
		if len(active) != 1 {
			t.Errorf("active entries = %+v; want one", active)
		}
	})
}

func TestResolve_TerminalEntryRejected(t *testing.T) {
	tr, _ := newTracker(t, "2025-08-15")
	entry := &models.ChangeLogEntry{
		ChangeID: "chg-1",
		Service:  "AmazonEC2",
		Status:   models.ChangeResolved,
		Version:  2,
	}
	if err := tr.Resolve(context.Background(), entry, "again"); !errors.Is(err, ErrTerminal) {
		t.Fatalf("err = %v; want ErrTerminal", err)
	}
}

func TestUpdate_RetriesOnceAfterConflict(t *testing.T) {
	tr, mem := newTracker(t, "2025-08-15")
	ctx := context.Background()

	entry, err := tr.Upsert(ctx, spikeAnomaly("AmazonEC2", 100), expectedFeedback("fb-1", models.DurationOngoing, 0))
	if err != nil {
		t.Fatal(err)
	}

	// A concurrent writer bumps the version underneath us.
	racer := *entry
	racer.Description = "updated elsewhere"
	if err := mem.UpdateChange(ctx, &racer, 1); err != nil {
		t.Fatal(err)
	}

	stale := *entry // still believes Version == 1
	if err := tr.Resolve(ctx, &stale, "done"); err != nil {
		t.Fatalf("Resolve after one conflict = %v; want retried success", err)
	}

	entries, _ := mem.ChangesForService(ctx, "AmazonEC2")
	if entries[0].Status != models.ChangeResolved {
		t.Errorf("Status = %q; want resolved after retry", entries[0].Status)
	}
	if entries[0].Version != 3 {
		t.Errorf("Version = %d; want 3", entries[0].Version)
	}
	// The retry re-applies the resolution on top of the concurrent write
	// instead of rewriting the stale copy over it.
	if entries[0].Description != "updated elsewhere" {
		t.Errorf("Description = %q; want the concurrent write preserved", entries[0].Description)
	}
}

// racingStore slips a concurrent feedback append in front of the first
// conditional update, so the caller's write loses its version check and has
// to retry on top of the new state.
type racingStore struct {
	*store.Memory
	raced bool
}

func (r *racingStore) UpdateChange(ctx context.Context, entry *models.ChangeLogEntry, expectedVersion int64) error {
	if !r.raced {
		r.raced = true
		entries, err := r.Memory.ChangesForService(ctx, entry.Service)
		if err != nil {
			return err
		}
		for i := range entries {
			if entries[i].ChangeID != entry.ChangeID {
				continue
			}
			racer := entries[i]
			racer.RelatedFeedbackIDs = append(append([]string{}, racer.RelatedFeedbackIDs...), "fb-racer")
			if err := r.Memory.UpdateChange(ctx, &racer, racer.Version); err != nil {
				return err
			}
		}
	}
	return r.Memory.UpdateChange(ctx, entry, expectedVersion)
}

func TestUpsert_RetryKeepsConcurrentFeedback(t *testing.T) {
	cfg := config.Default()
	mem := store.NewMemory()
	ctx := context.Background()

	tr := New(&racingStore{Memory: mem}, &cfg.Detection)
	fixed, _ := time.Parse("2006-01-02", "2025-08-15")
	tr.now = func() time.Time { return fixed }

	if _, err := tr.Upsert(ctx, spikeAnomaly("AmazonEC2", 100), expectedFeedback("fb-1", models.DurationOngoing, 0)); err != nil {
		t.Fatal(err)
	}
	entry, err := tr.Upsert(ctx, spikeAnomaly("AmazonEC2", 110), expectedFeedback("fb-2", models.DurationOngoing, 0))
	if err != nil {
		t.Fatalf("Upsert after one conflict = %v; want retried success", err)
	}

	want := []string{"fb-1", "fb-racer", "fb-2"}
	if len(entry.RelatedFeedbackIDs) != len(want) {
		t.Fatalf("RelatedFeedbackIDs = %v; want %v", entry.RelatedFeedbackIDs, want)
	}
	for i, id := range want {
		if entry.RelatedFeedbackIDs[i] != id {
			t.Errorf("RelatedFeedbackIDs[%d] = %q; want %q", i, entry.RelatedFeedbackIDs[i], id)
		}
	}
	if entry.Version != 3 {
		t.Errorf("Version = %d; want 3 after the racer's write and the retry", entry.Version)
	}

	entries, _ := mem.ChangesForService(ctx, "AmazonEC2")
	if len(entries) != 1 || len(entries[0].RelatedFeedbackIDs) != 3 {
		t.Errorf("stored entry = %+v; want all three feedback ids persisted", entries)
	}
}

// conflictStore forces every conditional update to fail, exercising the
// second-conflict path.
type conflictStore struct {
	store.Store
}

func (c conflictStore) UpdateChange(context.Context, *models.ChangeLogEntry, int64) error {
	return store.ErrVersionConflict
}

func TestUpdate_SecondConflictSurfaces(t *testing.T) {
	cfg := config.Default()
	mem := store.NewMemory()
	ctx := context.Background()

	entry := &models.ChangeLogEntry{
		ChangeID:      "chg-1",
		Service:       "AmazonEC2",
		Date:          "2025-08-15",
		Status:        models.ChangeActive,
		PercentChange: 100,
	}
	if err := mem.PutChange(ctx, entry); err != nil {
		t.Fatal(err)
	}

	tr := New(conflictStore{mem}, &cfg.Detection)
	tr.now = time.Now
	err := tr.Resolve(ctx, entry, "done")
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("err = %v; want ErrConcurrentUpdate", err)
	}
}
