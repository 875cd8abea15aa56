package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrcode/nightscout-insights/internal/app"
	"github.com/mrcode/nightscout-insights/internal/badge"
	"github.com/mrcode/nightscout-insights/internal/models"
	"github.com/mrcode/nightscout-insights/internal/notifications"
)

var watchTestNotification bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh continuously and raise desktop alerts",
	Long: `Refresh every refreshInterval seconds, print a status line with a sparkline
of the last two hours and raise desktop notifications for glucose alerts and
unlogged meals. Stops on Ctrl-C.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchTestNotification, "test-notification", false, "Send a test notification before starting")
}

func runWatch(cmd *cobra.Command, args []string) error {
	settings, cfg, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg.Log)

	notifier := notifications.NewManager(settings)
	if watchTestNotification {
		if err := notifier.SendTestNotification(); err != nil {
			logger.Warn("test notification failed", "error", err)
		}
	}

	renderer := badge.NewRenderer(settings.Clone().Unit)
	out := cmd.OutOrStdout()

	var svc *app.Service
	svc, cleanup, err := newService(settings, cfg, logger, serviceDeps{
		notifier: notifier,
		onUpdate: func(report *models.Report, status *models.GlucoseStatus) {
			if status == nil {
				fmt.Fprintln(out, "no readings")
				return
			}
			line := renderer.Tooltip(status, svc.History(), report.HealthScore)
			fmt.Fprintf(out, "%s\n\n", line)
		},
	})
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	current := settings.Clone()
	logger.Info("watching", "url", current.NightscoutURL, "interval_seconds", current.RefreshInterval)
	return svc.Run(ctx)
}
