package models

import "time"

// MealSource tells whether a meal was logged by the user or inferred from glucose.
type MealSource string

const (
	MealSourceLogged   MealSource = "logged"
	MealSourceInferred MealSource = "inferred"
)

// Meal providers known to the integrations service.
const (
	ProviderMyFitnessPal  = "myfitnesspal"
	ProviderHealthConnect = "health-connect"
)

// Meal is a carbohydrate event.
type Meal struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CarbsGrams float64    `json:"carbsGrams"`
	EatenAt    string     `json:"eatenAt"` // ISO-8601
	Source     MealSource `json:"source"`
	Provider   string     `json:"provider,omitempty"`
	Calories   *float64   `json:"calories,omitempty"`
}

// EatenTime parses EatenAt.
func (m *Meal) EatenTime() (time.Time, bool) {
	return ParseTimestamp(m.EatenAt)
}

// HealthSummary is the latest activity summary synced from the phone.
type HealthSummary struct {
	StepsLast24h    *float64 `json:"stepsLast24h"`
	WeightKgLatest  *float64 `json:"weightKgLatest"`
	WeightUpdatedAt *string  `json:"weightUpdatedAt"`
	SyncedAt        string   `json:"syncedAt,omitempty"`
}
