package analytics

import (
	"fmt"
	"slices"
	"time"

	"github.com/mrcode/nightscout-insights/internal/models"
)

// Meal inference thresholds.
const (
	mealLookbackSamples   = 4
	mealMinRiseMinutes    = 15
	mealMaxRiseMinutes    = 35
	mealMinRiseMgdl       = 30
	loggedMealSuppression = 60 * time.Minute
	inferredMealSpacing   = 90 * time.Minute
)

// DetectInferredMeals flags sharp glucose rises that no logged meal explains.
// A rise is the difference between a reading and the one four samples earlier
// when 15 to 35 minutes separate them and glucose climbed at least 30 mg/dL.
func DetectInferredMeals(entries []models.GlucoseEntry, loggedMeals []models.Meal) []models.InferredMeal {
	if len(entries) <= mealLookbackSamples {
		return nil
	}

	sorted := sortedByDate(entries)

	var mealTimes []int64
	for i := range loggedMeals {
		if at, ok := loggedMeals[i].EatenTime(); ok {
			mealTimes = append(mealTimes, at.UnixMilli())
		}
	}

	var inferred []models.InferredMeal
	for i := mealLookbackSamples; i < len(sorted); i++ {
		start, end := sorted[i-mealLookbackSamples], sorted[i]
		delta := end.SGV - start.SGV
		minutes := float64(end.Date-start.Date) / float64(time.Minute.Milliseconds())

		if minutes < mealMinRiseMinutes || minutes > mealMaxRiseMinutes || delta < mealMinRiseMgdl {
			continue
		}
		if within(end.Date, mealTimes, loggedMealSuppression) {
			continue
		}
		if slices.ContainsFunc(inferred, func(m models.InferredMeal) bool {
			return absMillis(m.EatenAt.UnixMilli()-end.Date) <= inferredMealSpacing.Milliseconds()
		}) {
			continue
		}

		inferred = append(inferred, models.InferredMeal{
			ID:       fmt.Sprintf("inferred-%d", end.Date),
			EatenAt:  time.UnixMilli(end.Date).UTC(),
			RiseMgdl: delta,
		})
	}
	return inferred
}

func within(ts int64, others []int64, d time.Duration) bool {
	return slices.ContainsFunc(others, func(o int64) bool {
		return absMillis(o-ts) <= d.Milliseconds()
	})
}

func absMillis(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// sortedByDate returns a chronologically sorted copy; equal timestamps keep
// their input order.
func sortedByDate(entries []models.GlucoseEntry) []models.GlucoseEntry {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b models.GlucoseEntry) int {
		switch {
		case a.Date < b.Date:
			return -1
		case a.Date > b.Date:
			return 1
		}
		return 0
	})
	return sorted
}
