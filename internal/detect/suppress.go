package detect

import "github.com/costguard/costguard/internal/models"

// Suppress marks anomalies already explained by an active change log entry.
// Suppressed anomalies stay in the slice (they are embedded in the snapshot
// for audit) with Suppressed set; callers alert only on the rest.
//
// An anomaly is suppressed when an active entry exists for its service and
// the anomaly's percent change does not exceed the acknowledged magnitude by
// more than tolerancePoints percentage points. An anomaly past that tolerance
// has materially worsened: it surfaces unsuppressed, but still references the
// entry for context.
//
// Account-level anomalies have no service-scoped changes and pass through.
func Suppress(anomalies []models.Anomaly, active []models.ChangeLogEntry, tolerancePoints float64) {
	byService := make(map[string]*models.ChangeLogEntry, len(active))
	for i := range active {
		entry := &active[i]
		if entry.Status != models.ChangeActive {
			continue
		}
		// One logical entry per service; prefer the most recently opened if
		// the store ever holds more.
		if prev, ok := byService[entry.Service]; !ok || entry.Date > prev.Date {
			byService[entry.Service] = entry
		}
	}

	for i := range anomalies {
		a := &anomalies[i]
		entry, ok := byService[a.Service]
		if !ok {
			continue
		}
		a.RelatedChangeID = entry.ChangeID
		a.Suppressed = a.PercentChange <= entry.PercentChange+tolerancePoints
	}
}

// Surfaced returns the anomalies that survived suppression, preserving order.
func Surfaced(anomalies []models.Anomaly) []models.Anomaly {
	out := make([]models.Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		if !a.Suppressed {
			out = append(out, a)
		}
	}
	return out
}
