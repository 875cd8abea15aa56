package analytics

import (
	"math"
	"time"

	"github.com/mrcode/nightscout-insights/internal/models"
)

// linearRemaining is the fraction of a dose still active after elapsed,
// decaying linearly to zero over duration.
func linearRemaining(elapsed, duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	return math.Max(0, 1-float64(elapsed)/float64(duration))
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// ComputeIOBCOB returns insulin and carbs on board at now. Treatments in the
// future or without a usable timestamp are ignored; a treatment carrying both
// insulin and carbs contributes to both totals.
func ComputeIOBCOB(treatments []models.Treatment, profile models.TherapyProfile, now time.Time) models.IOBCOB {
	action := hoursToDuration(profile.InsulinActionHours)
	absorb := hoursToDuration(profile.CarbAbsorptionHours)

	var iob, cob float64
	for i := range treatments {
		t := &treatments[i]
		at, ok := t.ParsedTime()
		if !ok || at.After(now) {
			continue
		}
		elapsed := now.Sub(at)

		if t.HasInsulin() {
			iob += t.Insulin * linearRemaining(elapsed, action)
		}
		if t.HasCarbs() {
			cob += t.Carbs * linearRemaining(elapsed, absorb)
		}
	}

	return models.IOBCOB{
		IOBUnits: round2(iob),
		COBGrams: round2(cob),
	}
}
