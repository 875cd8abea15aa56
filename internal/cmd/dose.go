package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrcode/nightscout-insights/internal/analytics"
	"github.com/mrcode/nightscout-insights/internal/app"
	"github.com/mrcode/nightscout-insights/internal/models"
	"github.com/mrcode/nightscout-insights/internal/notifications"
)

var (
	doseCarbs   float64
	doseGlucose float64
	doseTime    string
	doseIOB     float64
	doseCOB     float64
	doseLive    bool
	doseNotify  bool
)

var doseCmd = &cobra.Command{
	Use:   "dose",
	Short: "Estimate a meal bolus",
	Long: `Estimate a meal bolus from the carbs about to be eaten and the current glucose
(in g/L), using the carb ratio and target range in effect at the meal time.
Insulin and carbs still on board are subtracted; pass them with --iob/--cob or
use --live to derive them from recent Nightscout treatments.`,
	Example: `  nightscout-insights dose --carbs 60 --glucose 1.45 --time 12:30
  nightscout-insights dose --carbs 45 --glucose 1.1 --live`,
	RunE: runDose,
}

func init() {
	rootCmd.AddCommand(doseCmd)

	doseCmd.Flags().Float64VarP(&doseCarbs, "carbs", "c", 0, "Carbohydrates to eat, in grams")
	doseCmd.Flags().Float64VarP(&doseGlucose, "glucose", "g", 0, "Current glucose in g/L")
	doseCmd.Flags().StringVarP(&doseTime, "time", "t", "", "Meal time as HH:MM (default: now)")
	doseCmd.Flags().Float64Var(&doseIOB, "iob", 0, "Insulin on board, in units")
	doseCmd.Flags().Float64Var(&doseCOB, "cob", 0, "Carbs on board, in grams")
	doseCmd.Flags().BoolVar(&doseLive, "live", false, "Fetch treatments and use the live IOB/COB")
	doseCmd.Flags().BoolVar(&doseNotify, "notify", false, "Show a desktop notification with the result")

	_ = doseCmd.MarkFlagRequired("carbs")
	_ = doseCmd.MarkFlagRequired("glucose")
	doseCmd.MarkFlagsMutuallyExclusive("live", "iob")
	doseCmd.MarkFlagsMutuallyExclusive("live", "cob")
}

func runDose(cmd *cobra.Command, args []string) error {
	settings, cfg, err := loadSettings()
	if err != nil {
		return err
	}

	mealTime := doseTime
	if mealTime == "" {
		mealTime = time.Now().Format("15:04")
	}

	var advice *models.DoseAdvice
	if doseLive {
		logger := newLogger(cmd, cfg.Log)
		svc, cleanup, err := newService(settings, cfg, logger, serviceDeps{})
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := svc.Refresh(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetching insulin on board: %w", err)
		}
		if report.Source == app.SourceCache {
			return fmt.Errorf("cannot compute a live dose: %w", app.ErrStaleReport)
		}
		advice, err = svc.Dose(doseCarbs, doseGlucose, mealTime)
		if err != nil {
			return fmt.Errorf("cannot compute a live dose: %w", err)
		}
	} else {
		advice, err = analytics.CalculateDose(analytics.DoseRequest{
			CarbsGrams:       doseCarbs,
			CurrentGlucoseGL: doseGlucose,
			MealTimeHHMM:     mealTime,
			IOBUnits:         doseIOB,
			COBGrams:         doseCOB,
		}, settings.TherapyProfile())
		if err != nil {
			return err
		}
	}

	writeDose(cmd.OutOrStdout(), advice)

	if doseNotify {
		return notifications.NewManager(settings).NotifyDose(advice)
	}
	return nil
}

func writeDose(w io.Writer, a *models.DoseAdvice) {
	fmt.Fprintf(w, "Ratio window   %s (1 U per %g g)\n", a.RatioWindowID, a.GramsPerUnit)
	fmt.Fprintf(w, "Target range   %.2f-%.2f g/L, glucose is %s\n", a.TargetLowGL, a.TargetHighGL, a.GlucoseStatus)
	fmt.Fprintf(w, "Carb bolus     %.2f U\n", a.CarbBolusUnits)
	fmt.Fprintf(w, "Correction     %+.2f U\n", a.CorrectionUnits)
	if a.IOBUnits > 0 || a.COBGrams > 0 {
		fmt.Fprintf(w, "On board       %.2f U insulin, %.0f g carbs (%.2f U)\n", a.IOBUnits, a.COBGrams, a.COBAsUnits)
		fmt.Fprintf(w, "Adjusted       %.2f U carbs, %+.2f U correction\n", a.AdjustedCarbBolusUnits, a.AdjustedCorrectionUnits)
	}
	fmt.Fprintf(w, "Suggested dose %.1f U (%.2f U unrounded)\n", a.RoundedHalfUnitDose, a.AdjustedTotalUnits)
	if len(a.Notes) > 0 {
		fmt.Fprintf(w, "\n%s\n", strings.Join(a.Notes, "\n"))
	}
}
