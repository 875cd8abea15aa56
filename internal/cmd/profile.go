package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrcode/nightscout-insights/internal/models"
	"github.com/mrcode/nightscout-insights/internal/timewindow"
)

var profileForce bool

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect or initialise the therapy profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the therapy profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, _, err := loadSettings()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(settings.TherapyProfile())
	},
}

var profileValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the therapy profile for errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, _, err := loadSettings()
		if err != nil {
			return err
		}
		profile := settings.TherapyProfile()

		out := cmd.OutOrStdout()
		for _, clock := range timewindow.Defaulted(profile.RatioWindows) {
			fmt.Fprintf(out, "ratio window clock %q would be read as 00:00\n", clock)
		}
		for _, clock := range timewindow.Defaulted(profile.TargetWindows) {
			fmt.Fprintf(out, "target window clock %q would be read as 00:00\n", clock)
		}
		if err := profile.Validate(); err != nil {
			return err
		}
		fmt.Fprintf(out, "profile ok: %d ratio windows, %d target windows\n", len(profile.RatioWindows), len(profile.TargetWindows))
		return nil
	},
}

var profileInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with the default therapy profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := settingsPath
		if path == "" {
			var err error
			if path, err = models.GetConfigPath(); err != nil {
				return err
			}
		}

		if _, err := os.Stat(path); err == nil && !profileForce {
			return fmt.Errorf("%s already exists, use --force to reset its profile", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		settings := models.DefaultSettings()
		settings.SetPath(path)
		if err := settings.Load(); err != nil {
			return err
		}
		if err := settings.SetProfile(models.DefaultProfile()); err != nil {
			return err
		}
		if err := settings.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote default profile to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileShowCmd, profileValidateCmd, profileInitCmd)

	profileInitCmd.Flags().BoolVar(&profileForce, "force", false, "Replace the profile in an existing settings file")
}
