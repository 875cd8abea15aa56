package analytics

import (
	"math"
	"time"

	"github.com/mrcode/nightscout-insights/internal/models"
)

var baseTime = time.Date(2026, 2, 15, 8, 0, 0, 0, time.UTC)

func entryAt(at time.Time, sgv float64) models.GlucoseEntry {
	return models.GlucoseEntry{Date: at.UnixMilli(), SGV: sgv}
}

// series returns readings spaced every step starting at start.
func series(start time.Time, step time.Duration, values ...float64) []models.GlucoseEntry {
	out := make([]models.GlucoseEntry, len(values))
	for i, v := range values {
		out[i] = entryAt(start.Add(time.Duration(i)*step), v)
	}
	return out
}

func flatProfile() models.TherapyProfile {
	p := models.DefaultProfile()
	p.TargetWindows = nil
	return p
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
