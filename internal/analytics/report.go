package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrcode/nightscout-insights/internal/models"
)

// ReportInput is the raw data a report is computed from. It is never mutated.
type ReportInput struct {
	Entries    []models.GlucoseEntry
	Treatments []models.Treatment
	Meals      []models.Meal
	Summary    *models.HealthSummary
	Profile    models.TherapyProfile
}

// BuildReport runs every analysis against the same input and the same now.
// The analyses are independent and run concurrently.
func BuildReport(ctx context.Context, in ReportInput, now time.Time) (*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &models.Report{
		GeneratedAt: now,
		Meals:       in.Meals,
		Summary:     in.Summary,
	}

	var g errgroup.Group
	g.Go(func() error {
		report.Trend = ComputeTrendSummary(in.Entries)
		return nil
	})
	g.Go(func() error {
		report.Active = ComputeIOBCOB(in.Treatments, in.Profile, now)
		return nil
	})
	g.Go(func() error {
		report.TimeInRange = ComputeTimeInRange(in.Entries, in.Profile, now)
		return nil
	})
	g.Go(func() error {
		report.Sensitivity = EstimateSensitivity(in.Entries, in.Treatments, in.Profile)
		return nil
	})
	g.Go(func() error {
		report.HealthScore = ComputeHealthScore(in.Entries, in.Profile, now)
		return nil
	})
	g.Go(func() error {
		report.InferredMeals = DetectInferredMeals(in.Entries, in.Meals)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}
