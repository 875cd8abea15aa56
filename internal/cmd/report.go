package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrcode/nightscout-insights/internal/badge"
	"github.com/mrcode/nightscout-insights/internal/models"
)

var reportJSON bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetch the latest data and print the therapy report",
	Long: `Fetch glucose readings, treatments and meals, then print trend, insulin and
carbs on board, time in range, sensitivity, health score and unlogged meals.
Falls back to the last cached fetch when Nightscout is unreachable.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the report as JSON")
}

func runReport(cmd *cobra.Command, args []string) error {
	settings, cfg, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg.Log)

	svc, cleanup, err := newService(settings, cfg, logger, serviceDeps{})
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := svc.Refresh(cmd.Context())
	if err != nil {
		return fmt.Errorf("building report: %w", err)
	}

	if reportJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	unit := settings.Clone().Unit
	out := cmd.OutOrStdout()
	writeReport(out, report, unit)
	if chart := badge.NewRenderer(unit).Sparkline(svc.History(), 6); chart != "" {
		fmt.Fprintf(out, "\nLast 2 hours (%s)\n%s\n", unit, chart)
	}
	return nil
}

func formatGlucose(mgdl float64, unit string) string {
	if unit == "mmol/L" {
		return fmt.Sprintf("%.1f mmol/L", mgdl/18.0182)
	}
	return fmt.Sprintf("%.0f mg/dL", mgdl)
}

func formatOptional(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}

func writeBucket(w io.Writer, b models.TimeInRangeBucket) {
	if b.Count == 0 {
		fmt.Fprintf(w, "  %-6s no readings\n", b.Label)
		return
	}
	fmt.Fprintf(w, "  %-6s %5.1f%% in range  %5.1f%% low  %5.1f%% high  avg %s g/L  (%d readings)\n",
		b.Label, b.InRangePct, b.LowPct, b.HighPct, formatOptional(b.AvgGL, "%.2f"), b.Count)
}

func writeReport(w io.Writer, r *models.Report, unit string) {
	fmt.Fprintf(w, "Report generated %s", r.GeneratedAt.Local().Format("2006-01-02 15:04"))
	if r.Stale {
		fmt.Fprint(w, " (cached data, Nightscout unreachable)")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	if r.Trend.Current != nil {
		fmt.Fprintf(w, "Current   %s", formatGlucose(*r.Trend.Current, unit))
		if r.Trend.Delta != nil {
			fmt.Fprintf(w, " (%+.0f)", *r.Trend.Delta)
		}
		if r.Trend.Direction != "" {
			fmt.Fprintf(w, " %s", r.Trend.Direction)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Current   no readings")
	}
	fmt.Fprintf(w, "Active    %.2f U insulin, %.0f g carbs\n\n", r.Active.IOBUnits, r.Active.COBGrams)

	fmt.Fprintln(w, "Time in range")
	writeBucket(w, r.TimeInRange.Day)
	writeBucket(w, r.TimeInRange.Week)
	writeBucket(w, r.TimeInRange.Month)
	fmt.Fprintln(w)

	s := r.Sensitivity
	fmt.Fprintf(w, "Sensitivity  observed %s g/L per U, suggested %s g/L per U (%d samples, %s confidence)\n",
		formatOptional(s.ObservedDropGLPerU, "%.2f"), formatOptional(s.SuggestedDropGLPerU, "%.2f"), s.SampleCount, s.Confidence)

	if hs := r.HealthScore; hs != nil {
		fmt.Fprintf(w, "Health score %.0f/100  (TIR %.0f, variability %.0f, hypo %.0f, stability %.0f; CV %.1f%%)\n",
			hs.Overall, hs.TIRScore, hs.VariabilityScore, hs.HypoScore, hs.StabilityScore, hs.CVPct)
	} else {
		fmt.Fprintln(w, "Health score not enough readings")
	}

	if len(r.InferredMeals) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Unlogged meals")
		for _, m := range r.InferredMeals {
			fmt.Fprintf(w, "  %s  +%.0f mg/dL\n", m.EatenAt.Local().Format("Jan 02 15:04"), m.RiseMgdl)
		}
	}

	if len(r.Meals) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Logged meals (%d)\n", len(r.Meals))
		for _, m := range r.Meals[:min(len(r.Meals), 5)] {
			fmt.Fprintf(w, "  %s  %-24s %.0f g\n", m.EatenAt, truncate(m.Name, 24), m.CarbsGrams)
		}
	}

	if sum := r.Summary; sum != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Activity  steps %s, weight %s kg\n",
			formatOptional(sum.StepsLast24h, "%.0f"), formatOptional(sum.WeightKgLatest, "%.1f"))
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
