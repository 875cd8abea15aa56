package analytics

import (
	"math"
	"time"

	"github.com/mrcode/nightscout-insights/internal/models"
	"github.com/mrcode/nightscout-insights/internal/timewindow"
)

// Health score policy constants. Changing any of them changes what a score
// means, so stored scores are only comparable under the same values.
const (
	HealthScorePeriod     = 14 * 24 * time.Hour
	HealthScoreMinEntries = 12

	TIRWeight         = 0.4
	VariabilityWeight = 0.2
	HypoWeight        = 0.25
	StabilityWeight   = 0.15

	CVTargetPct         = 20.0 // no variability penalty at or below this CV
	CVPenaltyPerPct     = 3.0
	HypoPenaltyPerPct   = 4.0
	StabilityPenaltyPer = 2.0 // per mg/dL of mean absolute delta
)

// ComputeHealthScore grades the trailing 14 days. It returns nil when fewer
// than 12 readings fall in that period.
func ComputeHealthScore(entries []models.GlucoseEntry, profile models.TherapyProfile, now time.Time) *models.HealthScoreCard {
	fromMs := now.Add(-HealthScorePeriod).UnixMilli()
	toMs := now.UnixMilli()

	scoped := make([]models.GlucoseEntry, 0, len(entries))
	for _, e := range entries {
		if e.Date >= fromMs && e.Date <= toMs {
			scoped = append(scoped, e)
		}
	}
	if len(scoped) < HealthScoreMinEntries {
		return nil
	}
	scoped = sortedByDate(scoped)

	var low, inRange int
	var sumGL, sumDelta float64
	for i, e := range scoped {
		gl := e.ValueGL()
		lowGL, highGL := timewindow.TargetRange(profile, entryTime(e, now.Location()))
		sumGL += gl

		switch {
		case gl < lowGL:
			low++
		case gl <= highGL:
			inRange++
		}

		if i > 0 {
			sumDelta += math.Abs(e.SGV - scoped[i-1].SGV)
		}
	}

	n := float64(len(scoped))
	mean := sumGL / n
	var sq float64
	for _, e := range scoped {
		d := e.ValueGL() - mean
		sq += d * d
	}
	sd := math.Sqrt(sq / n)

	cvPct := 0.0
	if mean > 0 {
		cvPct = sd / mean * 100
	}
	inRangePct := float64(inRange) / n * 100
	lowPct := float64(low) / n * 100
	meanAbsDelta := sumDelta / (n - 1)

	tirScore := clamp(inRangePct, 0, 100)
	variabilityScore := clamp(100-math.Max(0, cvPct-CVTargetPct)*CVPenaltyPerPct, 0, 100)
	hypoScore := clamp(100-lowPct*HypoPenaltyPerPct, 0, 100)
	stabilityScore := clamp(100-meanAbsDelta*StabilityPenaltyPer, 0, 100)
	overall := tirScore*TIRWeight + variabilityScore*VariabilityWeight +
		hypoScore*HypoWeight + stabilityScore*StabilityWeight

	return &models.HealthScoreCard{
		Overall:          round2(overall),
		TIRScore:         round2(tirScore),
		VariabilityScore: round2(variabilityScore),
		HypoScore:        round2(hypoScore),
		StabilityScore:   round2(stabilityScore),
		InRangePct:       round2(inRangePct),
		LowPct:           round2(lowPct),
		CVPct:            round2(cvPct),
		EntryCount:       len(scoped),
	}
}
