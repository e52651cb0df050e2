package detect

import (
	"testing"

	"github.com/costguard/costguard/internal/models"
)

func activeChange(service string, pct float64) models.ChangeLogEntry {
	return models.ChangeLogEntry{
		ChangeID:      "chg-" + service,
		Service:       service,
		Status:        models.ChangeActive,
		PercentChange: pct,
		Date:          "2025-08-01",
	}
}

func TestSuppress_WithinTolerance(t *testing.T) {
	anomalies := []models.Anomaly{
		{ID: "a1", Service: "AmazonEC2", PercentChange: 110, Severity: models.SeverityCritical},
	}
	Suppress(anomalies, []models.ChangeLogEntry{activeChange("AmazonEC2", 100)}, 20)

	if !anomalies[0].Suppressed {
		t.Error("110% against an acknowledged 100% (tolerance 20) must suppress")
	}
	if anomalies[0].RelatedChangeID != "chg-AmazonEC2" {
		t.Errorf("RelatedChangeID = %q; want chg-AmazonEC2", anomalies[0].RelatedChangeID)
	}
}

func TestSuppress_PastToleranceSurfaces(t *testing.T) {
	anomalies := []models.Anomaly{
		{ID: "a1", Service: "AmazonEC2", PercentChange: 140, Severity: models.SeverityCritical},
	}
	Suppress(anomalies, []models.ChangeLogEntry{activeChange("AmazonEC2", 100)}, 20)

	if anomalies[0].Suppressed {
		t.Error("140% against an acknowledged 100% (tolerance 20) must surface")
	}
	if anomalies[0].RelatedChangeID != "chg-AmazonEC2" {
		t.Error("a surfaced anomaly still references the change for context")
	}
}

func TestSuppress_BoundaryIsSuppressed(t *testing.T) {
	anomalies := []models.Anomaly{
		{ID: "a1", Service: "AmazonEC2", PercentChange: 120},
	}
	Suppress(anomalies, []models.ChangeLogEntry{activeChange("AmazonEC2", 100)}, 20)
	if !anomalies[0].Suppressed {
		t.Error("exactly acknowledged+tolerance still counts as explained")
	}
}

func TestSuppress_IgnoresOtherServicesAndStates(t *testing.T) {
	resolved := activeChange("AmazonRDS", 100)
	resolved.Status = models.ChangeResolved

	anomalies := []models.Anomaly{
		{ID: "a1", Service: "AmazonRDS", PercentChange: 60},
		{ID: "a2", Service: "AmazonS3", PercentChange: 60},
	}
	Suppress(anomalies, []models.ChangeLogEntry{resolved, activeChange("AmazonEC2", 100)}, 20)

	for _, a := range anomalies {
		if a.Suppressed {
			t.Errorf("anomaly %s suppressed without an active change for its service", a.Service)
		}
		if a.RelatedChangeID != "" {
			t.Errorf("anomaly %s references %q; want no reference", a.Service, a.RelatedChangeID)
		}
	}
}

func TestSuppress_NewestEntryWins(t *testing.T) {
	older := activeChange("AmazonEC2", 40)
	older.ChangeID = "chg-old"
	older.Date = "2025-07-01"
	newer := activeChange("AmazonEC2", 100)
	newer.ChangeID = "chg-new"
	newer.Date = "2025-08-10"

	anomalies := []models.Anomaly{
		{ID: "a1", Service: "AmazonEC2", PercentChange: 90},
	}
	Suppress(anomalies, []models.ChangeLogEntry{older, newer}, 20)

	if !anomalies[0].Suppressed {
		t.Error("90% is within tolerance of the newest acknowledged 100%")
	}
	if anomalies[0].RelatedChangeID != "chg-new" {
		t.Errorf("RelatedChangeID = %q; want chg-new", anomalies[0].RelatedChangeID)
	}
}

func TestSurfaced(t *testing.T) {
	anomalies := []models.Anomaly{
		{ID: "a1", Suppressed: true},
		{ID: "a2"},
		{ID: "a3", Suppressed: true},
		{ID: "a4"},
	}
	got := Surfaced(anomalies)
	if len(got) != 2 || got[0].ID != "a2" || got[1].ID != "a4" {
		t.Fatalf("Surfaced = %+v; want a2, a4 in order", got)
	}
}
