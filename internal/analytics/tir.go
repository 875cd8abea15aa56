package analytics

import (
	"time"

	"github.com/mrcode/nightscout-insights/internal/models"
	"github.com/mrcode/nightscout-insights/internal/timewindow"
)

// Trailing periods covered by the time-in-range buckets.
const (
	DayPeriod   = 24 * time.Hour
	WeekPeriod  = 7 * DayPeriod
	MonthPeriod = 30 * DayPeriod
)

// ComputeTimeInRange builds the day, week and month buckets ending at now.
func ComputeTimeInRange(entries []models.GlucoseEntry, profile models.TherapyProfile, now time.Time) models.TimeInRangeStats {
	return models.TimeInRangeStats{
		Day:   timeInRangeBucket("day", DayPeriod, entries, profile, now),
		Week:  timeInRangeBucket("week", WeekPeriod, entries, profile, now),
		Month: timeInRangeBucket("month", MonthPeriod, entries, profile, now),
	}
}

func timeInRangeBucket(label string, period time.Duration, entries []models.GlucoseEntry, profile models.TherapyProfile, now time.Time) models.TimeInRangeBucket {
	fromMs := now.Add(-period).UnixMilli()
	toMs := now.UnixMilli()

	var count, low, high, inRange int
	var sumGL float64
	for _, e := range entries {
		if e.Date < fromMs || e.Date > toMs {
			continue
		}
		gl := e.ValueGL()
		lowGL, highGL := timewindow.TargetRange(profile, entryTime(e, now.Location()))

		count++
		sumGL += gl
		switch {
		case gl < lowGL:
			low++
		case gl > highGL:
			high++
		default:
			inRange++
		}
	}

	if count == 0 {
		return models.TimeInRangeBucket{
			Label: label,
			From:  time.UnixMilli(0).In(now.Location()),
			To:    now,
		}
	}

	n := float64(count)
	return models.TimeInRangeBucket{
		Label:      label,
		From:       now.Add(-period),
		To:         now,
		Count:      count,
		InRangePct: round2(float64(inRange) / n * 100),
		LowPct:     round2(float64(low) / n * 100),
		HighPct:    round2(float64(high) / n * 100),
		AvgGL:      ptr(round2(sumGL / n)),
	}
}
