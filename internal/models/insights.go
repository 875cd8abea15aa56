package models

import "time"

// IOBCOB is the amount of insulin and carbohydrate still active.
type IOBCOB struct {
	IOBUnits float64 `json:"iobUnits"`
	COBGrams float64 `json:"cobGrams"`
}

// TimeInRangeBucket summarises readings over one trailing period.
type TimeInRangeBucket struct {
	Label      string    `json:"label"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Count      int       `json:"count"`
	InRangePct float64   `json:"inRangePct"`
	LowPct     float64   `json:"lowPct"`
	HighPct    float64   `json:"highPct"`
	AvgGL      *float64  `json:"avgGL"` // nil when Count is 0
}

// TimeInRangeStats holds the day, week and month buckets.
type TimeInRangeStats struct {
	Day   TimeInRangeBucket `json:"day"`
	Week  TimeInRangeBucket `json:"week"`
	Month TimeInRangeBucket `json:"month"`
}

// GlucoseStatusLevel classifies the current glucose against the target range.
type GlucoseStatusLevel string

const (
	StatusLow     GlucoseStatusLevel = "low"
	StatusInRange GlucoseStatusLevel = "in-range"
	StatusHigh    GlucoseStatusLevel = "high"
)

// DoseAdvice is an estimated meal bolus with the IOB/COB adjustments applied.
type DoseAdvice struct {
	RatioWindowID           string             `json:"ratioWindowId"`
	GramsPerUnit            float64            `json:"gramsPerUnit"`
	TargetLowGL             float64            `json:"targetLowGL"`
	TargetHighGL            float64            `json:"targetHighGL"`
	CarbBolusUnits          float64            `json:"carbBolusUnits"`
	CorrectionUnits         float64            `json:"correctionUnits"`
	TotalUnits              float64            `json:"totalUnits"`
	IOBUnits                float64            `json:"iobUnits"`
	COBGrams                float64            `json:"cobGrams"`
	COBAsUnits              float64            `json:"cobAsUnits"`
	AdjustedCarbBolusUnits  float64            `json:"adjustedCarbBolusUnits"`
	AdjustedCorrectionUnits float64            `json:"adjustedCorrectionUnits"`
	AdjustedTotalUnits      float64            `json:"adjustedTotalUnits"`
	RoundedHalfUnitDose     float64            `json:"roundedHalfUnitDose"`
	GlucoseStatus           GlucoseStatusLevel `json:"glucoseStatus"`
	MealTimeDefaulted       bool               `json:"mealTimeDefaulted,omitempty"`
	Notes                   []string           `json:"notes"`
}

// InferredMeal is a sharp glucose rise not explained by a logged meal.
type InferredMeal struct {
	ID       string    `json:"id"`
	EatenAt  time.Time `json:"eatenAt"`
	RiseMgdl float64   `json:"riseMgdl"`
}

// AsMeal converts the detection into a carb-less Meal for display.
func (m InferredMeal) AsMeal() Meal {
	return Meal{
		ID:      m.ID,
		Name:    "Unlogged meal",
		EatenAt: m.EatenAt.UTC().Format(time.RFC3339),
		Source:  MealSourceInferred,
	}
}

// Confidence grades how much data backs an estimate.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// SensitivityInsight is the correction factor observed in the user's data.
type SensitivityInsight struct {
	SampleCount         int        `json:"sampleCount"`
	ObservedDropGLPerU  *float64   `json:"observedDropGLPerUnit"`
	SuggestedDropGLPerU *float64   `json:"suggestedDropGLPerUnit"`
	Confidence          Confidence `json:"confidence"`
}

// HealthScoreCard is a 0-100 composite of glycemic control.
type HealthScoreCard struct {
	Overall          float64 `json:"overall"`
	TIRScore         float64 `json:"tirScore"`
	VariabilityScore float64 `json:"variabilityScore"`
	HypoScore        float64 `json:"hypoScore"`
	StabilityScore   float64 `json:"stabilityScore"`
	InRangePct       float64 `json:"inRangePct"`
	LowPct           float64 `json:"lowPct"`
	CVPct            float64 `json:"cvPct"`
	EntryCount       int     `json:"entryCount"`
}

// Report bundles everything the dashboard displays after a refresh.
type Report struct {
	GeneratedAt   time.Time          `json:"generatedAt"`
	Source        string             `json:"source"` // "network" or "cache"
	Stale         bool               `json:"stale"`
	Trend         TrendSummary       `json:"trend"`
	Active        IOBCOB             `json:"active"`
	TimeInRange   TimeInRangeStats   `json:"timeInRange"`
	Sensitivity   SensitivityInsight `json:"sensitivity"`
	HealthScore   *HealthScoreCard   `json:"healthScore"`
	InferredMeals []InferredMeal     `json:"inferredMeals"`
	Meals         []Meal             `json:"meals"`
	Summary       *HealthSummary     `json:"healthSummary"`
}
