package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrcode/nightscout-insights/internal/badge"
)

var (
	badgeOut string
	badgeICO bool
)

var badgeCmd = &cobra.Command{
	Use:   "badge",
	Short: "Render the current glucose as an image",
	Long: `Render a 64x64 badge with the current glucose value, trend arrow and a ring
showing the health score. Writes PNG by default or ICO with --ico.`,
	RunE: runBadge,
}

func init() {
	rootCmd.AddCommand(badgeCmd)

	badgeCmd.Flags().StringVarP(&badgeOut, "out", "o", "", "Output file")
	badgeCmd.Flags().BoolVar(&badgeICO, "ico", false, "Write a Windows ICO instead of PNG")
	_ = badgeCmd.MarkFlagRequired("out")
}

func runBadge(cmd *cobra.Command, args []string) error {
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
		return err
	}
	status := svc.CurrentStatus()
	if status == nil {
		return errors.New("no glucose readings to render")
	}

	renderer := badge.NewRenderer(settings.Clone().Unit)
	var data []byte
	if badgeICO {
		data, err = renderer.RenderICO(status, report.HealthScore)
	} else {
		data, err = renderer.Render(status, report.HealthScore)
	}
	if err != nil {
		return fmt.Errorf("rendering badge: %w", err)
	}

	if err := os.WriteFile(badgeOut, data, 0o644); err != nil { //nolint:gosec // user-chosen output file
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", badgeOut, renderer.ValueText(status))
	return nil
}
