package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/mrcode/nightscout-insights/internal/models"
)

type fixedThresholds map[int]string

func (f fixedThresholds) GetGlucoseStatus(mgdl int) string {
	if s, ok := f[mgdl]; ok {
		return s
	}
	return "normal"
}

func TestComputeTrendSummary(t *testing.T) {
	entries := []models.GlucoseEntry{
		{Date: 200, SGV: 120, Direction: "Flat"},
		{Date: 100, SGV: 110, Direction: "FortyFiveUp"},
	}

	got := ComputeTrendSummary(entries)
	if got.Current == nil || *got.Current != 120 {
		t.Errorf("Current = %v, want 120", got.Current)
	}
	if got.Delta == nil || *got.Delta != 10 {
		t.Errorf("Delta = %v, want 10", got.Delta)
	}
	if got.Direction != "Flat" {
		t.Errorf("Direction = %q, want Flat", got.Direction)
	}

	empty := ComputeTrendSummary(nil)
	if empty.Current != nil || empty.Delta != nil || empty.UpdatedAt != nil {
		t.Errorf("ComputeTrendSummary(nil) = %+v, want empty", empty)
	}

	single := ComputeTrendSummary(entries[:1])
	if single.Delta != nil {
		t.Errorf("single-entry Delta = %v, want nil", *single.Delta)
	}
}

func TestCurrentStatus(t *testing.T) {
	now := baseTime.Add(20 * time.Minute)
	entries := series(baseTime, 5*time.Minute, 150, 160)
	entries[1].Direction = "SingleUp"

	status := CurrentStatus(entries, models.IOBCOB{IOBUnits: 1.2, COBGrams: 15}, fixedThresholds{160: "high"}, now)
	if status == nil {
		t.Fatal("CurrentStatus() = nil")
	}
	if status.Value != 160 || status.Delta != 10 || status.Status != "high" {
		t.Errorf("status = %+v, want value 160 delta 10 high", status)
	}
	if status.Trend != "↑" {
		t.Errorf("Trend = %q, want ↑", status.Trend)
	}
	if status.StaleMinutes != 15 || status.IsStale {
		t.Errorf("stale = %d/%v, want 15/false", status.StaleMinutes, status.IsStale)
	}
	if status.IOB != 1.2 || status.COB != 15 {
		t.Errorf("IOB/COB = %v/%v, want 1.2/15", status.IOB, status.COB)
	}

	if CurrentStatus(nil, models.IOBCOB{}, fixedThresholds{}, now) != nil {
		t.Error("CurrentStatus(nil) != nil")
	}
}

func TestBuildReport(t *testing.T) {
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	entries := series(now.Add(-3*time.Hour), 5*time.Minute,
		100, 100, 100, 100, 140, 150, 150, 140, 130, 120, 110, 100, 100, 100)
	treatments := []models.Treatment{
		{CreatedAt: "2026-02-15T10:00:00.000Z", Insulin: 2},
		{CreatedAt: "2026-02-15T11:00:00.000Z", Carbs: 30},
	}
	in := ReportInput{
		Entries:    entries,
		Treatments: treatments,
		Profile:    models.DefaultProfile(),
	}

	report, err := BuildReport(context.Background(), in, now)
	if err != nil {
		t.Fatalf("BuildReport() error = %v", err)
	}

	if !report.GeneratedAt.Equal(now) {
		t.Errorf("GeneratedAt = %v, want %v", report.GeneratedAt, now)
	}
	if report.Active.IOBUnits != 1 || report.Active.COBGrams != 20 {
		t.Errorf("Active = %+v, want 1 U / 20 g", report.Active)
	}
	if report.TimeInRange.Day.Count != len(entries) {
		t.Errorf("day count = %d, want %d", report.TimeInRange.Day.Count, len(entries))
	}
	if !report.TimeInRange.Day.To.Equal(now) {
		t.Errorf("TIR To = %v, want report now", report.TimeInRange.Day.To)
	}
	if report.HealthScore == nil {
		t.Error("HealthScore = nil, want a card for 14 entries")
	}
	if len(report.InferredMeals) != 1 {
		t.Errorf("InferredMeals = %d, want 1", len(report.InferredMeals))
	}
}

func TestBuildReport_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := BuildReport(ctx, ReportInput{Profile: models.DefaultProfile()}, baseTime); err == nil {
		t.Error("BuildReport() error = nil for cancelled context")
	}
}
