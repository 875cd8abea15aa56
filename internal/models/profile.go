package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RatioWindow maps a daily time span to an insulin-to-carb ratio.
type RatioWindow struct {
	ID           string  `json:"id" validate:"required"`
	StartHHMM    string  `json:"startHHMM" validate:"hhmm"`
	EndHHMM      string  `json:"endHHMM" validate:"hhmm"`
	GramsPerUnit float64 `json:"gramsPerUnit" validate:"gt=0"`
}

// Span returns the window's start and end clock strings.
func (w RatioWindow) Span() (string, string) { return w.StartHHMM, w.EndHHMM }

// TargetWindow maps a daily time span to a glucose target range in g/L.
type TargetWindow struct {
	ID        string  `json:"id" validate:"required"`
	StartHHMM string  `json:"startHHMM" validate:"hhmm"`
	EndHHMM   string  `json:"endHHMM" validate:"hhmm"`
	LowGL     float64 `json:"lowGL" validate:"gt=0"`
	HighGL    float64 `json:"highGL" validate:"gtfield=LowGL"`
}

// Span returns the window's start and end clock strings.
func (w TargetWindow) Span() (string, string) { return w.StartHHMM, w.EndHHMM }

// TherapyProfile holds the user's insulin settings. Glucose values are in g/L.
type TherapyProfile struct {
	RatioWindows                  []RatioWindow  `json:"ratioWindows" validate:"min=1,dive"`
	TargetWindows                 []TargetWindow `json:"targetWindows" validate:"dive"`
	TargetLowGL                   float64        `json:"targetLowGL" validate:"gt=0"`
	TargetHighGL                  float64        `json:"targetHighGL" validate:"gtfield=TargetLowGL"`
	CorrectionFactorDropGLPerUnit float64        `json:"correctionFactorDropGLPerUnit" validate:"gt=0"`
	InsulinActionHours            float64        `json:"insulinActionHours" validate:"gt=0"`
	CarbAbsorptionHours           float64        `json:"carbAbsorptionHours" validate:"gt=0"`
}

// DefaultProfile returns the profile used until the user configures their own.
func DefaultProfile() TherapyProfile {
	return TherapyProfile{
		RatioWindows: []RatioWindow{
			{ID: "morning", StartHHMM: "04:00", EndHHMM: "11:30", GramsPerUnit: 5},
			{ID: "day", StartHHMM: "11:31", EndHHMM: "03:59", GramsPerUnit: 7},
		},
		TargetWindows: []TargetWindow{
			{ID: "sleep", StartHHMM: "00:00", EndHHMM: "05:59", LowGL: 0.8, HighGL: 1.3},
			{ID: "morning", StartHHMM: "06:00", EndHHMM: "11:59", LowGL: 0.8, HighGL: 1.3},
			{ID: "day", StartHHMM: "12:00", EndHHMM: "23:59", LowGL: 0.8, HighGL: 1.3},
		},
		TargetLowGL:                   0.8,
		TargetHighGL:                  1.3,
		CorrectionFactorDropGLPerUnit: 0.5,
		InsulinActionHours:            4,
		CarbAbsorptionHours:           3,
	}
}

// Clone returns a deep copy of the profile.
func (p TherapyProfile) Clone() TherapyProfile {
	out := p
	out.RatioWindows = append([]RatioWindow(nil), p.RatioWindows...)
	if p.TargetWindows != nil {
		out.TargetWindows = append([]TargetWindow(nil), p.TargetWindows...)
	}
	return out
}

var hhmmPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

var profileValidator = newProfileValidator()

func newProfileValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmPattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	return v
}

// Validate reports every rule the profile breaks, joined into one error.
func (p TherapyProfile) Validate() error {
	err := profileValidator.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeProfileError(fe))
	}
	return fmt.Errorf("invalid therapy profile: %s", strings.Join(msgs, "; "))
}

func describeProfileError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "TherapyProfile.")
	switch fe.Tag() {
	case "hhmm":
		return fmt.Sprintf("%s must use HH:MM format", field)
	case "gt", "gtfield":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s entry", field, fe.Param())
	case "required":
		return fmt.Sprintf("%s is required", field)
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
