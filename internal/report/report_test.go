package report

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/costguard/costguard/internal/models"
	"github.com/costguard/costguard/internal/store"
)

const account = "123456789012"

func putDay(t *testing.T, mem *store.Memory, date string, byService map[string]float64, anomalies ...models.Anomaly) {
	t.Helper()
	var total float64
	for _, c := range byService {
		total += c
	}
	err := mem.PutSnapshot(context.Background(), &models.CostSnapshot{
		SnapshotID:        "snap-" + date,
		Date:              date,
		PeriodType:        models.PeriodDaily,
		AccountID:         account,
		TotalCost:         total,
		CostByService:     byService,
		AnomaliesDetected: anomalies,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDaily(t *testing.T) {
	mem := store.NewMemory()
	for _, date := range []string{"2025-08-10", "2025-08-11", "2025-08-12", "2025-08-13", "2025-08-14"} {
		putDay(t, mem, date, map[string]float64{"AmazonEC2": 100, "AmazonS3": 20})
	}
	putDay(t, mem, "2025-08-15", map[string]float64{"AmazonEC2": 200, "AmazonS3": 20, "AmazonRDS": 40},
		models.Anomaly{ID: "a1", Service: "AmazonEC2", Severity: models.SeverityCritical},
		models.Anomaly{ID: "a2", Service: "AmazonRDS", Severity: models.SeverityWarning, Suppressed: true},
	)

	d, err := NewBuilder(mem).Daily(context.Background(), account, "2025-08-15")
	if err != nil {
		t.Fatal(err)
	}
	if d.Date != "2025-08-15" || d.UsedFallback {
		t.Errorf("Date = %s fallback=%v; want exact day", d.Date, d.UsedFallback)
	}
	if d.TotalCost != 260 {
		t.Errorf("TotalCost = %v; want 260", d.TotalCost)
	}
	if len(d.TopServices) != 3 || d.TopServices[0].Service != "AmazonEC2" {
		t.Errorf("TopServices = %+v; want EC2 first", d.TopServices)
	}
	if d.AnomalyCount != 1 || d.CriticalCount != 1 || d.SuppressedHint != 1 {
		t.Errorf("counts = %d/%d/%d; want 1 surfaced, 1 critical, 1 suppressed",
			d.AnomalyCount, d.CriticalCount, d.SuppressedHint)
	}
	if d.TrendPercent == nil {
		t.Fatal("expected a trend against the trailing week")
	}
	// 260 against a 120/day average.
	if *d.TrendPercent < 110 || *d.TrendPercent > 125 {
		t.Errorf("TrendPercent = %v; want ~116", *d.TrendPercent)
	}
}

func TestDaily_FallsBackToLatestDay(t *testing.T) {
	mem := store.NewMemory()
	putDay(t, mem, "2025-08-13", map[string]float64{"AmazonEC2": 100})

	d, err := NewBuilder(mem).Daily(context.Background(), account, "2025-08-15")
	if err != nil {
		t.Fatal(err)
	}
	if d.Date != "2025-08-13" || !d.UsedFallback {
		t.Errorf("Date = %s fallback=%v; want 2025-08-13 via fallback", d.Date, d.UsedFallback)
	}
}

func TestDaily_NoData(t *testing.T) {
	mem := store.NewMemory()
	_, err := NewBuilder(mem).Daily(context.Background(), account, "2025-08-15")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v; want ErrNoData", err)
	}
}

func TestWeekly(t *testing.T) {
	mem := store.NewMemory()
	// Prior week at $100/day, current week at $150/day.
	for _, date := range []string{"2025-08-04", "2025-08-05", "2025-08-06", "2025-08-07", "2025-08-08"} {
		putDay(t, mem, date, map[string]float64{"AmazonEC2": 100})
	}
	week := []string{"2025-08-11", "2025-08-12", "2025-08-13", "2025-08-14", "2025-08-15"}
	for i, date := range week {
		anomalies := []models.Anomaly{}
		if i == 2 {
			anomalies = append(anomalies, models.Anomaly{ID: "a1", Severity: models.SeverityCritical})
		}
		putDay(t, mem, date, map[string]float64{"AmazonEC2": 120, "AmazonS3": 30}, anomalies...)
	}

	w, err := NewBuilder(mem).Weekly(context.Background(), account, "2025-08-15")
	if err != nil {
		t.Fatal(err)
	}
	if w.StartDate != "2025-08-11" || w.EndDate != "2025-08-15" || w.Days != 5 {
		t.Errorf("window = %s..%s over %d days", w.StartDate, w.EndDate, w.Days)
	}
	if w.TotalCost != 750 {
		t.Errorf("TotalCost = %v; want 750", w.TotalCost)
	}
	if w.DailyAverage != 150 {
		t.Errorf("DailyAverage = %v; want 150", w.DailyAverage)
	}
	if w.WeekOverWeekPercent == nil {
		t.Fatal("expected a week-over-week comparison")
	}
	if *w.WeekOverWeekPercent != 50 {
		t.Errorf("WeekOverWeekPercent = %v; want 50", *w.WeekOverWeekPercent)
	}
	if w.AnomalyCount != 1 || w.CriticalCount != 1 {
		t.Errorf("anomalies = %d/%d; want 1 critical", w.AnomalyCount, w.CriticalCount)
	}
	if w.TopServices[0].Service != "AmazonEC2" || w.TopServices[0].Cost != 600 {
		t.Errorf("TopServices = %+v; want EC2 at 600", w.TopServices)
	}
}

func TestWeekly_NoData(t *testing.T) {
	mem := store.NewMemory()
	_, err := NewBuilder(mem).Weekly(context.Background(), account, "2025-08-15")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v; want ErrNoData", err)
	}
}

func TestDailyMessage_MentionsSuppression(t *testing.T) {
	trend := 10.0
	d := &Daily{
		Date:           "2025-08-15",
		TotalCost:      260,
		TopServices:    []ServiceCost{{Service: "AmazonEC2", Cost: 200}},
		TrendPercent:   &trend,
		AnomalyCount:   1,
		CriticalCount:  1,
		SuppressedHint: 2,
	}
	msg := DailyMessage(d)
	text := msg.Blocks[0].Text.Text
	if !strings.Contains(text, "suppressed") {
		t.Errorf("daily message should mention suppressed anomalies:\n%s", text)
	}
	if !strings.Contains(text, "$260.00") {
		t.Errorf("daily message should carry the total:\n%s", text)
	}
}
