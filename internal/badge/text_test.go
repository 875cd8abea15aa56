package badge

import (
	"strings"
	"testing"

	"github.com/mrcode/nightscout-insights/internal/models"
)

func TestSparkline(t *testing.T) {
	chart := Sparkline([]float64{100, 110, 120, 130, 140, 150, 140, 130, 120, 110, 100}, 10)
	if chart == "" {
		t.Fatal("Expected chart to be generated, got empty string")
	}

	lines := strings.Split(chart, "\n")
	if len(lines) != 12 {
		t.Fatalf("got %d lines, want 12 (max label, 10 rows, min label)", len(lines))
	}
	if lines[0] != "Max: 160" || lines[11] != "Min: 90" {
		t.Errorf("labels = %q / %q", lines[0], lines[11])
	}
	for _, row := range lines[1:11] {
		if n := len([]rune(row)); n != 11 {
			t.Errorf("row width = %d, want 11", n)
		}
	}
	// The 150 peak fills 34 of 40 sub-blocks: the top row stays empty and
	// the next one is half full.
	if got := []rune(lines[1])[5]; got != '⠀' {
		t.Errorf("top row peak cell = %q, want empty", got)
	}
	if got := []rune(lines[2])[5]; got != '⣤' {
		t.Errorf("second row peak cell = %q, want ⣤", got)
	}
}

func TestSparkline_FlatSeriesFillsHalf(t *testing.T) {
	// min 90, max 110: value 100 covers exactly the bottom five rows.
	chart := Sparkline([]float64{100, 100}, 10)
	lines := strings.Split(chart, "\n")
	for i := 1; i <= 10; i++ {
		want := "⠀⠀"
		if i > 5 {
			want = "⣿⣿"
		}
		if lines[i] != want {
			t.Errorf("row %d = %q, want %q", i, lines[i], want)
		}
	}
}

func TestRenderer_SparklineMmol(t *testing.T) {
	values := []float64{5.5, 6.1, 6.7, 7.2, 7.8, 8.3}
	chart := NewRenderer("mmol/L").Sparkline(values, 10)
	lines := strings.Split(chart, "\n")
	if len(lines) != 12 {
		t.Fatalf("got %d lines, want 12", len(lines))
	}
	if lines[0] != "Max: 8.8" || lines[11] != "Min: 5.0" {
		t.Errorf("labels = %q / %q, want Max: 8.8 / Min: 5.0", lines[0], lines[11])
	}
	// Range 5.0-8.8: 5.5 fills about 5 of 40 sub-blocks, 8.3 about 35.
	if got := []rune(lines[1])[0]; got != '⠀' {
		t.Errorf("top row first cell = %q, want empty", got)
	}
	if got := []rune(lines[10])[0]; got != '⣿' {
		t.Errorf("bottom row first cell = %q, want full", got)
	}
	if got := []rune(lines[1])[5]; got != '⠀' {
		t.Errorf("top row last cell = %q, want empty", got)
	}
	if got := []rune(lines[2])[5]; got != '⣶' {
		t.Errorf("second row last cell = %q, want ⣶", got)
	}
}

func TestRenderer_SparklineMgdlMatchesDefault(t *testing.T) {
	values := []float64{100, 120, 140}
	if got, want := NewRenderer("mg/dL").Sparkline(values, 4), Sparkline(values, 4); got != want {
		t.Errorf("Renderer.Sparkline() = %q, want %q", got, want)
	}
}

func TestSparkline_TooShort(t *testing.T) {
	if Sparkline([]float64{100}, 10) != "" {
		t.Error("single value should render nothing")
	}
	if CompactSparkline(nil) != "" {
		t.Error("nil values should render nothing")
	}
}

func TestCompactSparkline(t *testing.T) {
	got := CompactSparkline([]float64{100, 150, 200})
	if got != "⣀⣤⣿" {
		t.Errorf("CompactSparkline() = %q, want ⣀⣤⣿", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "just now"},
		{1, "1 minute"},
		{5, "5 minutes"},
		{60, "1 hour"},
		{125, "2 hours"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.minutes); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	if FormatStatus("normal") != "In Range" || FormatStatus("urgent_low") != "Urgent Low" {
		t.Error("unexpected status labels")
	}
	if FormatStatus("mystery") != "mystery" {
		t.Error("unknown status should pass through")
	}
}

func TestTooltip(t *testing.T) {
	r := NewRenderer("mg/dL")
	status := &models.GlucoseStatus{Value: 180, Trend: "↑", Status: "high", StaleMinutes: 3, IOB: 1.5, COB: 20, IsStale: true}

	tip := r.Tooltip(status, []float64{150, 165, 180}, &models.HealthScoreCard{Overall: 64})

	for _, want := range []string{"180 mg/dL ↑", "Status: High", "Updated: 3 minutes ago", "IOB 1.50 U", "Health score: 64/100", "No fresh data"} {
		if !strings.Contains(tip, want) {
			t.Errorf("tooltip missing %q:\n%s", want, tip)
		}
	}
	if r.Tooltip(nil, nil, nil) != "No glucose data" {
		t.Error("nil status tooltip")
	}
}
