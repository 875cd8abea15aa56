package analytics

import (
	"errors"
	"fmt"
	"math"

	"github.com/mrcode/nightscout-insights/internal/models"
	"github.com/mrcode/nightscout-insights/internal/timewindow"
)

// ErrInvalidDoseInput is returned when a dose cannot be computed from the
// request or profile. Callers must not display a dose in that case.
var ErrInvalidDoseInput = errors.New("cannot compute a dose")

// Advisory notes attached to every dose.
const (
	NoteLowGlucose   = "Current glucose is below target. Treat low glucose first before taking a correction dose."
	NoteNotModelled  = "Estimate does not include activity, illness, or delayed digestion."
	NoteClinicalPlan = "Confirm any dose decision with your clinician's treatment plan."
)

// DoseRequest is the input to CalculateDose. IOBUnits and COBGrams default to 0.
type DoseRequest struct {
	CarbsGrams       float64
	CurrentGlucoseGL float64
	MealTimeHHMM     string
	IOBUnits         float64
	COBGrams         float64
}

func invalidDose(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDoseInput, fmt.Sprintf(format, args...))
}

func (r DoseRequest) validate() error {
	switch {
	case !isFinite(r.CarbsGrams) || r.CarbsGrams < 0:
		return invalidDose("carbs must be zero or a positive number, got %v", r.CarbsGrams)
	case !isFinite(r.CurrentGlucoseGL) || r.CurrentGlucoseGL <= 0:
		return invalidDose("current glucose must be a positive number, got %v", r.CurrentGlucoseGL)
	case !isFinite(r.IOBUnits) || r.IOBUnits < 0:
		return invalidDose("insulin on board must be zero or positive, got %v", r.IOBUnits)
	case !isFinite(r.COBGrams) || r.COBGrams < 0:
		return invalidDose("carbs on board must be zero or positive, got %v", r.COBGrams)
	}
	return nil
}

func validTargetRange(low, high float64) bool {
	return isFinite(low) && isFinite(high) && low > 0 && high > low
}

// CalculateDose estimates a meal bolus. The carb ratio is the one in effect
// at the meal time; glucose is classified and corrected against the profile's
// flat target range. Insulin and carbs still on board are subtracted from the
// correction and carb parts respectively.
func CalculateDose(req DoseRequest, profile models.TherapyProfile) (*models.DoseAdvice, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if !validTargetRange(profile.TargetLowGL, profile.TargetHighGL) {
		return nil, invalidDose("target range %v-%v g/L is invalid", profile.TargetLowGL, profile.TargetHighGL)
	}
	cf := profile.CorrectionFactorDropGLPerUnit
	if !isFinite(cf) || cf <= 0 {
		return nil, invalidDose("correction factor must be positive, got %v", cf)
	}

	clock := timewindow.ParseClock(req.MealTimeHHMM)
	window, ok := timewindow.ResolveMinute(profile.RatioWindows, clock.Minutes)
	if !ok {
		return nil, invalidDose("profile has no carb ratio windows")
	}
	ratio := window.GramsPerUnit
	if !isFinite(ratio) || ratio <= 0 {
		return nil, invalidDose("carb ratio for window %q must be positive, got %v", window.ID, ratio)
	}

	lowGL, highGL := profile.TargetLowGL, profile.TargetHighGL

	var notes []string
	if clock.Defaulted {
		notes = append(notes, fmt.Sprintf("Meal time %q is not in HH:MM format; 00:00 was used to pick the carb ratio.", req.MealTimeHHMM))
	}

	carbBolus := req.CarbsGrams / ratio
	status := models.StatusInRange
	correction := 0.0
	switch {
	case req.CurrentGlucoseGL < lowGL:
		status = models.StatusLow
		notes = append(notes, NoteLowGlucose)
	case req.CurrentGlucoseGL > highGL:
		status = models.StatusHigh
		correction = (req.CurrentGlucoseGL - highGL) / cf
	}

	cobAsUnits := req.COBGrams / ratio
	adjustedCorrection := math.Max(0, correction-req.IOBUnits)
	adjustedCarb := math.Max(0, carbBolus-cobAsUnits)
	total := carbBolus + correction
	adjustedTotal := adjustedCarb + adjustedCorrection

	notes = append(notes,
		fmt.Sprintf("Adjusted for %.2f U insulin on board and %.0f g carbs on board.", req.IOBUnits, req.COBGrams),
		NoteNotModelled,
		NoteClinicalPlan,
	)

	return &models.DoseAdvice{
		RatioWindowID:           window.ID,
		GramsPerUnit:            ratio,
		TargetLowGL:             lowGL,
		TargetHighGL:            highGL,
		CarbBolusUnits:          round2(carbBolus),
		CorrectionUnits:         round2(correction),
		TotalUnits:              round2(total),
		IOBUnits:                round2(req.IOBUnits),
		COBGrams:                round2(req.COBGrams),
		COBAsUnits:              round2(cobAsUnits),
		AdjustedCarbBolusUnits:  round2(adjustedCarb),
		AdjustedCorrectionUnits: round2(adjustedCorrection),
		AdjustedTotalUnits:      round2(adjustedTotal),
		RoundedHalfUnitDose:     round2(RoundHalfUnit(adjustedTotal)),
		GlucoseStatus:           status,
		MealTimeDefaulted:       clock.Defaulted,
		Notes:                   notes,
	}, nil
}

// RoundHalfUnit rounds to the nearest half unit, ties away from zero.
func RoundHalfUnit(units float64) float64 {
	return math.Round(units*2) / 2
}
