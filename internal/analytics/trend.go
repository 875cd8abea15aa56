package analytics

import (
	"time"

	"github.com/mrcode/nightscout-insights/internal/models"
)

// StaleAfter is how old the newest reading may be before it is flagged stale.
const StaleAfter = 15 * time.Minute

// ComputeTrendSummary describes the newest reading and its change from the
// one before it. All fields are nil when there are no entries.
func ComputeTrendSummary(entries []models.GlucoseEntry) models.TrendSummary {
	if len(entries) == 0 {
		return models.TrendSummary{}
	}

	sorted := sortedByDate(entries)
	latest := sorted[len(sorted)-1]
	updated := latest.Time().UTC()

	summary := models.TrendSummary{
		Current:   ptr(latest.SGV),
		Direction: latest.Direction,
		UpdatedAt: &updated,
	}
	if len(sorted) > 1 {
		summary.Delta = ptr(latest.SGV - sorted[len(sorted)-2].SGV)
	}
	return summary
}

// ThresholdClassifier maps an mg/dL value to an alert level such as "low".
type ThresholdClassifier interface {
	GetGlucoseStatus(mgdl int) string
}

// CurrentStatus builds the display status for the newest reading. It returns
// nil when there are no entries.
func CurrentStatus(entries []models.GlucoseEntry, active models.IOBCOB, thresholds ThresholdClassifier, now time.Time) *models.GlucoseStatus {
	if len(entries) == 0 {
		return nil
	}

	trend := ComputeTrendSummary(entries)
	sorted := sortedByDate(entries)
	latest := sorted[len(sorted)-1]

	staleMinutes := int(now.Sub(latest.Time()).Minutes())
	status := &models.GlucoseStatus{
		Value:        latest.ValueMgDL(),
		ValueMmol:    latest.ValueMmolL(),
		Trend:        latest.TrendArrow(),
		Direction:    latest.Direction,
		Time:         latest.Time(),
		Status:       thresholds.GetGlucoseStatus(latest.ValueMgDL()),
		StaleMinutes: staleMinutes,
		IsStale:      now.Sub(latest.Time()) > StaleAfter,
		IOB:          active.IOBUnits,
		COB:          active.COBGrams,
	}
	if trend.Delta != nil {
		status.Delta = int(*trend.Delta)
	}
	return status
}
