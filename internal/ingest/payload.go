package ingest

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mrcode/nightscout-insights/internal/models"
	"github.com/mrcode/nightscout-insights/internal/store"
)

// Meal listing bounds.
const (
	defaultMealsWindow = 30 * 24 * time.Hour
	defaultMealsLimit  = 500
	maxMealsLimit      = 5000
)

type ingestPayload struct {
	DeviceID string         `json:"deviceId" validate:"required"`
	SyncedAt string         `json:"syncedAt" validate:"required,isotime"`
	Summary  *ingestSummary `json:"summary" validate:"required"`
	Meals    []ingestMeal   `json:"meals" validate:"required,dive"`
}

type ingestSummary struct {
	StepsLast24h    *float64 `json:"stepsLast24h"`
	WeightKgLatest  *float64 `json:"weightKgLatest"`
	WeightUpdatedAt *string  `json:"weightUpdatedAt" validate:"omitnil,isotime"`
}

type ingestMeal struct {
	ID         string   `json:"id" validate:"required"`
	Name       string   `json:"name" validate:"required"`
	CarbsGrams *float64 `json:"carbsGrams" validate:"required,gte=0"`
	EatenAt    string   `json:"eatenAt" validate:"required,isotime"`
	Calories   *float64 `json:"calories" validate:"omitnil,gte=0"`
	Source     string   `json:"source"`
}

type payloadValidator struct {
	v *validator.Validate
}

func newPayloadValidator() *payloadValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	_ = v.RegisterValidation("isotime", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseTimestamp(fl.Field().String())
		return ok
	})
	return &payloadValidator{v: v}
}

// trim normalises whitespace before validation so blank ids fail "required".
func (p *ingestPayload) trim() {
	p.DeviceID = strings.TrimSpace(p.DeviceID)
	for i := range p.Meals {
		p.Meals[i].ID = strings.TrimSpace(p.Meals[i].ID)
		p.Meals[i].Name = strings.TrimSpace(p.Meals[i].Name)
	}
}

// batch validates the payload and converts it for the store.
func (pv *payloadValidator) batch(p *ingestPayload) (store.SyncBatch, error) {
	p.trim()
	if err := pv.v.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return store.SyncBatch{}, invalid(describeFieldError(verrs[0]), err)
		}
		return store.SyncBatch{}, invalid("Payload is invalid.", err)
	}

	synced, _ := models.ParseTimestamp(p.SyncedAt)
	b := store.SyncBatch{
		DeviceID:       p.DeviceID,
		SyncedAt:       synced.UTC(),
		StepsLast24h:   p.Summary.StepsLast24h,
		WeightKgLatest: p.Summary.WeightKgLatest,
		Meals:          make([]store.SyncedMeal, 0, len(p.Meals)),
	}
	if p.Summary.WeightUpdatedAt != nil {
		t, _ := models.ParseTimestamp(*p.Summary.WeightUpdatedAt)
		t = t.UTC()
		b.WeightUpdatedAt = &t
	}

	for _, m := range p.Meals {
		eaten, _ := models.ParseTimestamp(m.EatenAt)
		sm := store.SyncedMeal{
			ID:         m.ID,
			Name:       m.Name,
			CarbsGrams: round2(*m.CarbsGrams),
			EatenAt:    eaten.UTC(),
			Provider:   models.ProviderMyFitnessPal,
		}
		if m.Source == models.ProviderHealthConnect {
			sm.Provider = models.ProviderHealthConnect
		}
		if m.Calories != nil {
			c := round2(*m.Calories)
			sm.Calories = &c
		}
		b.Meals = append(b.Meals, sm)
	}
	return b, nil
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "ingestPayload.")
	switch fe.Tag() {
	case "required":
		return field + " is required."
	case "isotime":
		return field + " must be an ISO datetime string."
	case "gte":
		return field + " must be a positive number."
	default:
		return fmt.Sprintf("%s is invalid (%s).", field, fe.Tag())
	}
}

// parseMealsQuery reads from, to and limit with their defaults.
func parseMealsQuery(from, to, limit string, now time.Time) (store.MealQuery, error) {
	q := store.MealQuery{
		From:  now.Add(-defaultMealsWindow),
		To:    now,
		Limit: defaultMealsLimit,
	}

	if from != "" {
		t, ok := models.ParseTimestamp(from)
		if !ok {
			return q, invalid("Invalid datetime query parameter.", nil)
		}
		q.From = t
	}
	if to != "" {
		t, ok := models.ParseTimestamp(to)
		if !ok {
			return q, invalid("Invalid datetime query parameter.", nil)
		}
		q.To = t
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 || n > maxMealsLimit {
			return q, invalid(fmt.Sprintf("limit must be an integer between 1 and %d.", maxMealsLimit), err)
		}
		q.Limit = n
	}
	if q.From.After(q.To) {
		return q, invalid("from must be earlier than to.", nil)
	}
	return q, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
