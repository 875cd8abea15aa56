package badge

import (
	"fmt"
	"math"
	"strings"

	"github.com/mrcode/nightscout-insights/internal/models"
)

// sparkBlocks are Braille cells filled from the bottom, 0/4 to 4/4.
var sparkBlocks = []rune{'⠀', '⣀', '⣤', '⣶', '⣿'}

// Chart padding added above and below the series, per display unit.
const (
	sparkPaddingMgdl = 10.0
	sparkPaddingMmol = 0.5
)

// Sparkline renders mg/dL values as a multi-line Braille chart with min and
// max labels. It returns "" for fewer than two values.
func Sparkline(values []float64, height int) string {
	return sparkline(values, height, sparkPaddingMgdl, "%.0f")
}

// Sparkline renders values in the renderer's unit.
func (r *Renderer) Sparkline(values []float64, height int) string {
	if r.Unit == "mmol/L" {
		return sparkline(values, height, sparkPaddingMmol, "%.1f")
	}
	return Sparkline(values, height)
}

func sparkline(values []float64, height int, padding float64, labelFormat string) string {
	if len(values) < 2 || height < 1 {
		return ""
	}

	minVal, maxVal := values[0], values[0]
	for _, v := range values {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}

	// Padding keeps flat series off the chart edges.
	minVal = math.Max(0, minVal-padding)
	maxVal += padding
	rangeVal := maxVal - minVal

	const subBlocksPerLine = 4.0
	rows := make([][]rune, height)
	for i := range rows {
		rows[i] = []rune(strings.Repeat(string(sparkBlocks[0]), len(values)))
	}

	for x, val := range values {
		total := (val - minVal) / rangeVal * float64(height) * subBlocksPerLine
		for y := 0; y < height; y++ {
			lineIdx := height - 1 - y
			lineStart := float64(y) * subBlocksPerLine
			lineEnd := float64(y+1) * subBlocksPerLine

			switch {
			case total >= lineEnd:
				rows[lineIdx][x] = sparkBlocks[len(sparkBlocks)-1]
			case total > lineStart:
				idx := int(math.Round(total - lineStart))
				idx = max(0, min(idx, len(sparkBlocks)-1))
				rows[lineIdx][x] = sparkBlocks[idx]
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Max: "+labelFormat+"\n", maxVal)
	for _, row := range rows {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Min: "+labelFormat, minVal)
	return b.String()
}

// CompactSparkline renders one Braille cell per value on a single line,
// scaled between the series minimum and maximum.
func CompactSparkline(values []float64) string {
	if len(values) < 2 {
		return ""
	}

	minVal, maxVal := values[0], values[0]
	for _, v := range values {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	rangeVal := maxVal - minVal
	if rangeVal == 0 {
		rangeVal = 1
	}

	out := make([]rune, len(values))
	for i, v := range values {
		idx := int(math.Round((v - minVal) / rangeVal * float64(len(sparkBlocks)-1)))
		// An empty cell would read as a gap.
		out[i] = sparkBlocks[max(1, idx)]
	}
	return string(out)
}

// FormatStatus returns a human-readable status string
func FormatStatus(status string) string {
	switch status {
	case statusUrgentLow:
		return "Urgent Low"
	case statusUrgentHigh:
		return "Urgent High"
	case statusLow:
		return "Low"
	case statusHigh:
		return "High"
	case "normal":
		return "In Range"
	default:
		return status
	}
}

// FormatDuration formats minutes into a human-readable duration
func FormatDuration(minutes int) string {
	if minutes < 1 {
		return "just now"
	}
	if minutes == 1 {
		return "1 minute"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	hours := minutes / 60
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}

// Tooltip summarises the status, recent history and score in a few lines.
func (r *Renderer) Tooltip(status *models.GlucoseStatus, history []float64, score *models.HealthScoreCard) string {
	if status == nil {
		return "No glucose data"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", r.ValueText(status), r.Unit, status.Trend)
	if spark := CompactSparkline(history); spark != "" {
		b.WriteString(spark)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Status: %s\nUpdated: %s ago", FormatStatus(status.Status), FormatDuration(status.StaleMinutes))
	if status.IOB > 0 || status.COB > 0 {
		fmt.Fprintf(&b, "\nIOB %.2f U · COB %.0f g", status.IOB, status.COB)
	}
	if score != nil {
		fmt.Fprintf(&b, "\nHealth score: %.0f/100", score.Overall)
	}
	if status.IsStale {
		b.WriteString("\n⚠️ No fresh data (check connection)")
	}
	return b.String()
}
