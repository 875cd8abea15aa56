package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/nightscout-insights/internal/config"
	"github.com/mrcode/nightscout-insights/internal/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		settingsPath = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestApplyOverrides(t *testing.T) {
	settings := models.DefaultSettings()
	settings.NightscoutURL = "https://old.example.com"
	settings.APISecret = "keep-me"

	applyOverrides(settings, &config.ClientConfig{
		NightscoutURL:     "https://ns.example.com",
		NightscoutToken:   "tok-123",
		IntegrationsURL:   "https://integrations.example.com",
		IntegrationsToken: "read-abc",
	})

	assert.Equal(t, "https://ns.example.com", settings.NightscoutURL)
	assert.Equal(t, "tok-123", settings.APIToken)
	assert.True(t, settings.UseToken)
	assert.Equal(t, "keep-me", settings.APISecret)
	assert.Equal(t, "https://integrations.example.com", settings.IntegrationsURL)
	assert.Equal(t, "read-abc", settings.IntegrationsToken)
}

func TestApplyOverrides_EmptyKeepsFile(t *testing.T) {
	settings := models.DefaultSettings()
	settings.NightscoutURL = "https://ns.example.com"

	applyOverrides(settings, &config.ClientConfig{})

	assert.Equal(t, "https://ns.example.com", settings.NightscoutURL)
	assert.False(t, settings.UseToken)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "nightscout-insights version dev")
}

func TestDoseCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	out, err := execute(t, "dose", "--settings", path, "--carbs", "50", "--glucose", "1.2", "--time", "12:00")
	require.NoError(t, err)

	assert.Contains(t, out, "Ratio window   day (1 U per 7 g)")
	assert.Contains(t, out, "Carb bolus     7.14 U")
	assert.Contains(t, out, "Suggested dose 7.0 U")
}

func TestDoseCommand_InvalidInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	_, err := execute(t, "dose", "--settings", path, "--carbs", "50", "--glucose", "0", "--time", "12:00")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot compute a dose")
}

func TestProfileCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	out, err := execute(t, "profile", "init", "--settings", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote default profile")

	_, err = execute(t, "profile", "init", "--settings", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	out, err = execute(t, "profile", "show", "--settings", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"ratioWindows"`)
	assert.Contains(t, out, `"gramsPerUnit": 5`)

	out, err = execute(t, "profile", "validate", "--settings", path)
	require.NoError(t, err)
	assert.Contains(t, out, "profile ok: 2 ratio windows, 3 target windows")
}

func TestWriteReport(t *testing.T) {
	current, delta := 142.0, -4.0
	avg := 1.31
	observed, suggested := 0.42, 0.45
	report := &models.Report{
		GeneratedAt: time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC),
		Source:      "cache",
		Stale:       true,
		Trend:       models.TrendSummary{Current: &current, Delta: &delta, Direction: "FortyFiveDown"},
		Active:      models.IOBCOB{IOBUnits: 1.25, COBGrams: 18},
		TimeInRange: models.TimeInRangeStats{
			Day:   models.TimeInRangeBucket{Label: "24h", Count: 288, InRangePct: 71.5, LowPct: 2.1, HighPct: 26.4, AvgGL: &avg},
			Week:  models.TimeInRangeBucket{Label: "7d"},
			Month: models.TimeInRangeBucket{Label: "30d"},
		},
		Sensitivity: models.SensitivityInsight{
			SampleCount:         4,
			ObservedDropGLPerU:  &observed,
			SuggestedDropGLPerU: &suggested,
			Confidence:          models.ConfidenceMedium,
		},
		InferredMeals: []models.InferredMeal{{ID: "i1", EatenAt: time.Date(2026, 2, 15, 8, 0, 0, 0, time.UTC), RiseMgdl: 52}},
	}

	var buf bytes.Buffer
	writeReport(&buf, report, "mg/dL")
	out := buf.String()

	for _, want := range []string{
		"cached data",
		"Current   142 mg/dL (-4) FortyFiveDown",
		"Active    1.25 U insulin, 18 g carbs",
		"71.5% in range",
		"7d     no readings",
		"observed 0.42 g/L per U, suggested 0.45 g/L per U (4 samples, medium confidence)",
		"Health score not enough readings",
		"+52 mg/dL",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Logged meals")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("  short ", 10))
	got := truncate("Chicken burrito with extra rice", 10)
	assert.Equal(t, 10, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
