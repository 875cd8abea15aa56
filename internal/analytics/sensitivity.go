package analytics

import (
	"time"

	"github.com/mrcode/nightscout-insights/internal/models"
)

// Sensitivity estimation policy. The suggestion blends the configured
// correction factor with the observed one; the configured value dominates so
// a few noisy corrections cannot swing it.
const (
	ConfiguredFactorWeight = 0.6
	ObservedFactorWeight   = 0.4

	correctionMaxCarbs    = 5.0
	beforeDoseTolerance   = 20 * time.Minute
	afterDoseOffset       = 120 * time.Minute
	afterDoseTolerance    = 45 * time.Minute
	highConfidenceCount   = 10
	mediumConfidenceCount = 4
)

// IsCorrectionOnly reports whether a treatment is insulin with at most a
// token amount of carbs.
func IsCorrectionOnly(t models.Treatment) bool {
	return t.Insulin > 0 && t.Carbs <= correctionMaxCarbs
}

// EstimateSensitivity measures how far glucose fell two hours after each
// correction-only dose and blends the average drop per unit with the
// profile's correction factor.
func EstimateSensitivity(entries []models.GlucoseEntry, treatments []models.Treatment, profile models.TherapyProfile) models.SensitivityInsight {
	sorted := sortedByDate(entries)

	var factors []float64
	for i := range treatments {
		t := treatments[i]
		if !IsCorrectionOnly(t) {
			continue
		}
		at, ok := t.ParsedTime()
		if !ok {
			continue
		}

		before, ok := nearestEntry(sorted, at.UnixMilli(), beforeDoseTolerance)
		if !ok {
			continue
		}
		after, ok := nearestEntry(sorted, at.Add(afterDoseOffset).UnixMilli(), afterDoseTolerance)
		if !ok {
			continue
		}

		dropGL := (before.SGV - after.SGV) / models.MgdlPerGL
		if dropGL <= 0 {
			continue
		}
		if factor := dropGL / t.Insulin; isFinite(factor) && factor > 0 {
			factors = append(factors, factor)
		}
	}

	if len(factors) == 0 {
		return models.SensitivityInsight{Confidence: models.ConfidenceLow}
	}

	var sum float64
	for _, f := range factors {
		sum += f
	}
	avg := sum / float64(len(factors))
	suggested := profile.CorrectionFactorDropGLPerUnit*ConfiguredFactorWeight + avg*ObservedFactorWeight

	return models.SensitivityInsight{
		SampleCount:         len(factors),
		ObservedDropGLPerU:  ptr(round2(avg)),
		SuggestedDropGLPerU: ptr(round2(suggested)),
		Confidence:          confidenceFor(len(factors)),
	}
}

func confidenceFor(samples int) models.Confidence {
	switch {
	case samples >= highConfidenceCount:
		return models.ConfidenceHigh
	case samples >= mediumConfidenceCount:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// nearestEntry returns the reading closest to ts within tolerance on either
// side. On a tie the earlier reading wins.
func nearestEntry(sorted []models.GlucoseEntry, ts int64, tolerance time.Duration) (models.GlucoseEntry, bool) {
	var best models.GlucoseEntry
	bestGap := int64(-1)
	limit := tolerance.Milliseconds()

	for _, e := range sorted {
		gap := absMillis(e.Date - ts)
		if gap <= limit && (bestGap < 0 || gap < bestGap) {
			best, bestGap = e, gap
		}
	}
	return best, bestGap >= 0
}
