// Package analytics turns glucose readings, treatments and meals into the
// therapy metrics shown on the dashboard. Every function is a pure function
// of its arguments, including the reference time.
package analytics

import (
	"math"
	"time"

	"github.com/mrcode/nightscout-insights/internal/models"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func ptr[T any](v T) *T {
	return &v
}

// entryTime returns the reading's instant in loc, so wall-clock lookups use
// the caller's local time.
func entryTime(e models.GlucoseEntry, loc *time.Location) time.Time {
	return time.UnixMilli(e.Date).In(loc)
}
