package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/costguard/costguard/internal/changelog"
	"github.com/costguard/costguard/internal/config"
	"github.com/costguard/costguard/internal/models"
	"github.com/costguard/costguard/internal/store"
)

const (
	testDate    = "2025-08-15"
	testAccount = "123456789012"
	testAlertID = "alert-ec2-spike"
)

func seedSnapshot(t *testing.T, mem *store.Memory) {
	t.Helper()
	snap := &models.CostSnapshot{
		SnapshotID: "snap-1",
		Date:       testDate,
		PeriodType: models.PeriodDaily,
		AccountID:  testAccount,
		TotalCost:  245,
		CostByService: map[string]float64{
			"AmazonEC2": 200,
			"AmazonS3":  45,
		},
		AnomaliesDetected: []models.Anomaly{{
			ID:            testAlertID,
			Service:       "AmazonEC2",
			CurrentCost:   200,
			BaselineCost:  100,
			Amount:        100,
			PercentChange: 100,
			Severity:      models.SeverityCritical,
			SignalKind:    models.SignalPercentChange,
		}},
	}
	if err := mem.PutSnapshot(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
}

func newRecorder(t *testing.T) (*Recorder, *store.Memory) {
	t.Helper()
	cfg := config.Default()
	mem := store.NewMemory()
	seedSnapshot(t, mem)
	rec := NewRecorder(mem, changelog.New(mem, &cfg.Detection), cfg)
	fixed, _ := time.Parse("2006-01-02", testDate)
	rec.now = func() time.Time { return fixed }
	return rec, mem
}

func request(userID string, duration models.DurationType) Request {
	return Request{
		AlertID:      testAlertID,
		Date:         testDate,
		AccountID:    testAccount,
		UserID:       userID,
		UserName:     "Dana",
		FeedbackType: models.FeedbackExpected,
		DurationType: duration,
		Explanation:  "migration traffic",
	}
}

func TestRecord_PersistsFeedback(t *testing.T) {
	rec, mem := newRecorder(t)

	fb, err := rec.Record(context.Background(), request("U123", models.DurationOneTime))
	if err != nil {
		t.Fatal(err)
	}
	if fb.FeedbackID == "" {
		t.Error("FeedbackID must be assigned")
	}
	if fb.CostImpact != 100 {
		t.Errorf("CostImpact = %v; want the anomaly's amount 100", fb.CostImpact)
	}
	if len(fb.AffectedServices) != 1 || fb.AffectedServices[0] != "AmazonEC2" {
		t.Errorf("AffectedServices = %v; want [AmazonEC2]", fb.AffectedServices)
	}
	if fb.RetentionExpiry == 0 {
		t.Error("RetentionExpiry must be set")
	}

	stored, err := mem.FeedbackForDate(context.Background(), testDate)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].FeedbackID != fb.FeedbackID {
		t.Errorf("stored feedback = %+v; want the recorded one", stored)
	}

	// One-time changes open no change log entry.
	active, err := mem.ActiveChanges(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("active changes = %+v; want none for one_time", active)
	}
}

func TestRecord_DuplicateRejected(t *testing.T) {
	rec, _ := newRecorder(t)
	ctx := context.Background()

	if _, err := rec.Record(ctx, request("U123", models.DurationOneTime)); err != nil {
		t.Fatal(err)
	}
	_, err := rec.Record(ctx, request("U123", models.DurationOneTime))
	if !errors.Is(err, ErrDuplicateFeedback) {
		t.Fatalf("err = %v; want ErrDuplicateFeedback", err)
	}
}

func TestRecord_DifferentUsersAllowed(t *testing.T) {
	rec, mem := newRecorder(t)
	ctx := context.Background()

	if _, err := rec.Record(ctx, request("U123", models.DurationOneTime)); err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Record(ctx, request("U456", models.DurationOneTime)); err != nil {
		t.Fatal(err)
	}

	stored, err := mem.FeedbackForDate(ctx, testDate)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("stored feedback count = %d; want 2", len(stored))
	}
}

func TestRecord_OngoingOpensChangeLogEntry(t *testing.T) {
	rec, mem := newRecorder(t)
	ctx := context.Background()

	fb, err := rec.Record(ctx, request("U123", models.DurationOngoing))
	if err != nil {
		t.Fatal(err)
	}

	active, err := mem.ActiveChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("active changes = %+v; want one", active)
	}
	entry := active[0]
	if entry.Service != "AmazonEC2" {
		t.Errorf("Service = %q; want AmazonEC2", entry.Service)
	}
	if entry.PercentChange != 100 {
		t.Errorf("PercentChange = %v; want the acknowledged 100", entry.PercentChange)
	}
	if len(entry.RelatedFeedbackIDs) != 1 || entry.RelatedFeedbackIDs[0] != fb.FeedbackID {
		t.Errorf("RelatedFeedbackIDs = %v; want [%s]", entry.RelatedFeedbackIDs, fb.FeedbackID)
	}
	if entry.AcknowledgedBy != "U123" {
		t.Errorf("AcknowledgedBy = %q; want U123", entry.AcknowledgedBy)
	}
}

func TestRecord_TemporarySetsEndDate(t *testing.T) {
	rec, mem := newRecorder(t)
	ctx := context.Background()

	req := request("U123", models.DurationTemporary)
	req.ExpectedDurationDays = 7
	if _, err := rec.Record(ctx, req); err != nil {
		t.Fatal(err)
	}

	active, err := mem.ActiveChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("active changes = %+v; want one", active)
	}
	if active[0].ExpectedEndDate != "2025-08-22" {
		t.Errorf("ExpectedEndDate = %q; want 2025-08-22", active[0].ExpectedEndDate)
	}
}

func TestRecord_UnknownAlert(t *testing.T) {
	rec, _ := newRecorder(t)

	req := request("U123", models.DurationOneTime)
	req.AlertID = "no-such-alert"
	if _, err := rec.Record(context.Background(), req); !errors.Is(err, ErrAlertNotFound) {
		t.Fatalf("err = %v; want ErrAlertNotFound", err)
	}

	req = request("U123", models.DurationOneTime)
	req.Date = "2025-01-01"
	if _, err := rec.Record(context.Background(), req); !errors.Is(err, ErrAlertNotFound) {
		t.Fatalf("err = %v; want ErrAlertNotFound for missing snapshot", err)
	}
}

func TestRecord_Validation(t *testing.T) {
	rec, _ := newRecorder(t)

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing alert id", func(r *Request) { r.AlertID = "" }},
		{"missing user id", func(r *Request) { r.UserID = "" }},
		{"missing date", func(r *Request) { r.Date = "" }},
		{"bad feedback type", func(r *Request) { r.FeedbackType = "meh" }},
		{"bad duration type", func(r *Request) { r.DurationType = "forever" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request("U123", models.DurationOneTime)
			tt.mutate(&req)
			if _, err := rec.Record(context.Background(), req); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

// conflictStore fails every change log update so the recorder surfaces the
// concurrency error while keeping the feedback write durable.
type conflictStore struct {
	store.Store
}

func (c conflictStore) UpdateChange(context.Context, *models.ChangeLogEntry, int64) error {
	return store.ErrVersionConflict
}

func TestRecord_ConcurrentChangeUpdateSurfaces(t *testing.T) {
	cfg := config.Default()
	mem := store.NewMemory()
	seedSnapshot(t, mem)
	ctx := context.Background()

	// Pre-existing active entry forces Upsert down the update path.
	if err := mem.PutChange(ctx, &models.ChangeLogEntry{
		ChangeID:      "chg-1",
		Service:       "AmazonEC2",
		Date:          "2025-08-10",
		Status:        models.ChangeActive,
		PercentChange: 95,
	}); err != nil {
		t.Fatal(err)
	}

	wrapped := conflictStore{mem}
	rec := NewRecorder(wrapped, changelog.New(wrapped, &cfg.Detection), cfg)

	fb, err := rec.Record(ctx, request("U123", models.DurationOngoing))
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("err = %v; want ErrConcurrentUpdate", err)
	}
	if fb == nil {
		t.Fatal("the feedback record itself must survive the change log failure")
	}

	stored, err := mem.FeedbackForDate(ctx, testDate)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Errorf("stored feedback = %+v; want the durable record", stored)
	}
}
