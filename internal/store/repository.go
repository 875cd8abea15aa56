package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mrcode/nightscout-insights/internal/models"
)

// latestSummaryID is the single row key of health_summary.
const latestSummaryID = "latest"

const isoMillis = "2006-01-02T15:04:05.000Z"

// SyncBatch is one validated upload from a phone.
type SyncBatch struct {
	DeviceID string
	SyncedAt time.Time

	StepsLast24h    *float64
	WeightKgLatest  *float64
	WeightUpdatedAt *time.Time

	Meals []SyncedMeal
}

// SyncedMeal is a meal as reported by the device. Provider is the meal's
// originating app.
type SyncedMeal struct {
	ID         string
	Name       string
	CarbsGrams float64
	Calories   *float64
	EatenAt    time.Time
	Provider   string
}

// MealQuery bounds a meal listing. From and To are inclusive.
type MealQuery struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Repository reads and writes synced integration data.
type Repository struct {
	db  DBTX
	now func() time.Time
}

// NewRepository creates a Repository backed by a pool or a transaction.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db, now: time.Now}
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SaveSync upserts the latest summary, the batch's meals and the device's
// sync cursor. When the underlying DBTX can begin a transaction the three
// writes commit together.
func (r *Repository) SaveSync(ctx context.Context, b SyncBatch) error {
	if db, ok := r.db.(beginner); ok {
		return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
			return (&Repository{db: tx, now: r.now}).saveSync(ctx, b)
		})
	}
	return r.saveSync(ctx, b)
}

func (r *Repository) saveSync(ctx context.Context, b SyncBatch) error {
	now := r.now().UTC()

	_, err := r.db.Exec(ctx,
		`INSERT INTO health_summary
		 (id, device_id, steps_last_24h, weight_kg_latest, weight_updated_at, synced_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   device_id = EXCLUDED.device_id,
		   steps_last_24h = EXCLUDED.steps_last_24h,
		   weight_kg_latest = EXCLUDED.weight_kg_latest,
		   weight_updated_at = EXCLUDED.weight_updated_at,
		   synced_at = EXCLUDED.synced_at,
		   updated_at = EXCLUDED.updated_at`,
		latestSummaryID,
		b.DeviceID,
		b.StepsLast24h,
		b.WeightKgLatest,
		b.WeightUpdatedAt,
		b.SyncedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("upserting health summary: %w", err)
	}

	for _, m := range b.Meals {
		_, err := r.db.Exec(ctx,
			`INSERT INTO meals
			 (id, device_id, meal_id, name, carbs_grams, calories, eaten_at, source, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			 ON CONFLICT (id) DO UPDATE SET
			   name = EXCLUDED.name,
			   carbs_grams = EXCLUDED.carbs_grams,
			   calories = EXCLUDED.calories,
			   eaten_at = EXCLUDED.eaten_at,
			   source = EXCLUDED.source,
			   updated_at = EXCLUDED.updated_at`,
			b.DeviceID+":"+m.ID,
			b.DeviceID,
			m.ID,
			m.Name,
			m.CarbsGrams,
			m.Calories,
			m.EatenAt,
			m.Provider,
			now,
		)
		if err != nil {
			return fmt.Errorf("upserting meal %s: %w", m.ID, err)
		}
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO sync_cursor (device_id, synced_at, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (device_id) DO UPDATE SET
		   synced_at = EXCLUDED.synced_at,
		   updated_at = EXCLUDED.updated_at`,
		b.DeviceID,
		b.SyncedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("updating sync cursor: %w", err)
	}
	return nil
}

// LatestSummary returns the most recent health summary or ErrNotFound.
func (r *Repository) LatestSummary(ctx context.Context) (*models.HealthSummary, error) {
	var (
		steps, weight *float64
		weightAt      *time.Time
		syncedAt      time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT steps_last_24h, weight_kg_latest, weight_updated_at, synced_at
		 FROM health_summary WHERE id = $1`,
		latestSummaryID,
	).Scan(&steps, &weight, &weightAt, &syncedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading health summary: %w", err)
	}

	summary := &models.HealthSummary{
		StepsLast24h:   steps,
		WeightKgLatest: weight,
		SyncedAt:       syncedAt.UTC().Format(isoMillis),
	}
	if weightAt != nil {
		s := weightAt.UTC().Format(isoMillis)
		summary.WeightUpdatedAt = &s
	}
	return summary, nil
}

// ListMeals returns meals eaten within the query bounds, newest first.
func (r *Repository) ListMeals(ctx context.Context, q MealQuery) ([]models.Meal, error) {
	rows, err := r.db.Query(ctx,
		`SELECT meal_id, name, carbs_grams, calories, eaten_at, source
		 FROM meals
		 WHERE eaten_at >= $1 AND eaten_at <= $2
		 ORDER BY eaten_at DESC
		 LIMIT $3`,
		q.From, q.To, q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing meals: %w", err)
	}
	defer rows.Close()

	meals := []models.Meal{}
	for rows.Next() {
		var (
			m        models.Meal
			calories *float64
			eatenAt  time.Time
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.CarbsGrams, &calories, &eatenAt, &m.Provider); err != nil {
			return nil, fmt.Errorf("scanning meal: %w", err)
		}
		m.Calories = calories
		m.EatenAt = eatenAt.UTC().Format(isoMillis)
		m.Source = models.MealSourceLogged
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating meals: %w", err)
	}
	return meals, nil
}
