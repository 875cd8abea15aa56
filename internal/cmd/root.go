package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrcode/nightscout-insights/internal/app"
	"github.com/mrcode/nightscout-insights/internal/cache"
	"github.com/mrcode/nightscout-insights/internal/config"
	"github.com/mrcode/nightscout-insights/internal/external"
	"github.com/mrcode/nightscout-insights/internal/integrations"
	"github.com/mrcode/nightscout-insights/internal/logging"
	"github.com/mrcode/nightscout-insights/internal/models"
	"github.com/mrcode/nightscout-insights/internal/nightscout"
)

var errNotConfigured = errors.New("no Nightscout URL configured: set NIGHTSCOUT_URL or nightscoutUrl in the settings file")

var (
	settingsPath string
	logLevel     string
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "nightscout-insights",
	Short: "Therapy analytics for Nightscout data",
	Long: `nightscout-insights reads glucose readings and treatments from a Nightscout
site, combines them with meals logged through the integrations service and
reports time in range, insulin and carbs on board, sensitivity, a health score
and meal bolus estimates.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to settings.json (default: XDG config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides LOG_FORMAT)")
}

// newLogger applies the command line overrides on top of the environment.
func newLogger(cmd *cobra.Command, cfg config.LogConfig) *slog.Logger {
	level, format := cfg.Level, cfg.Format
	if logLevel != "" {
		level = logLevel
	}
	if logFormat != "" {
		format = logFormat
	}
	return logging.New(level, format, cmd.ErrOrStderr())
}

// loadSettings reads the settings file and overlays the connection
// variables from the environment.
func loadSettings() (*models.Settings, *config.ClientConfig, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, nil, err
	}

	settings := models.DefaultSettings()
	if settingsPath != "" {
		settings.SetPath(settingsPath)
	}
	if err := settings.Load(); err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}
	applyOverrides(settings, cfg)
	return settings, cfg, nil
}

func applyOverrides(settings *models.Settings, cfg *config.ClientConfig) {
	if cfg.NightscoutURL != "" {
		settings.NightscoutURL = cfg.NightscoutURL
	}
	if token := cfg.NightscoutToken.Unmask(); token != "" {
		settings.APIToken = token
		settings.UseToken = true
	}
	if secret := cfg.NightscoutAPISecret.Unmask(); secret != "" {
		settings.APISecret = secret
	}
	if cfg.IntegrationsURL != "" {
		settings.IntegrationsURL = cfg.IntegrationsURL
	}
	if token := cfg.IntegrationsToken.Unmask(); token != "" {
		settings.IntegrationsToken = token
	}
}

// serviceDeps are the optional pieces a command wires into app.Service.
type serviceDeps struct {
	notifier app.Notifier
	onUpdate app.UpdateFunc
}

// newService builds the refresh service for the desktop commands. The
// returned cleanup closes the snapshot store.
func newService(settings *models.Settings, cfg *config.ClientConfig, logger *slog.Logger, deps serviceDeps) (*app.Service, func(), error) {
	if !settings.IsConfigured() {
		return nil, nil, errNotConfigured
	}

	ns := nightscout.NewClient(settings.NightscoutURL, settings.APISecret, settings.APIToken, settings.UseToken,
		nightscout.WithBaseClient(newBaseClient(cfg.HTTPTimeout, "nightscout")),
		nightscout.WithLogger(logger),
	)

	opts := []app.Option{app.WithLogger(logger)}
	if settings.IntegrationsURL != "" {
		opts = append(opts, app.WithIntegrations(integrations.NewClient(settings.IntegrationsURL, settings.IntegrationsToken,
			integrations.WithBaseClient(newBaseClient(cfg.HTTPTimeout, "integrations")),
			integrations.WithLogger(logger),
		)))
	}
	if deps.notifier != nil {
		opts = append(opts, app.WithNotifier(deps.notifier))
	}
	if deps.onUpdate != nil {
		opts = append(opts, app.WithUpdateFunc(deps.onUpdate))
	}

	cleanup := func() {}
	if path, err := cache.DefaultPath(); err != nil {
		logger.Warn("snapshot cache disabled", "error", err)
	} else if store, err := cache.NewStore(path); err != nil {
		logger.Warn("snapshot cache disabled", "path", path, "error", err)
	} else {
		opts = append(opts, app.WithSnapshots(store))
		cleanup = store.Close
	}

	return app.NewService(settings, ns, opts...), cleanup, nil
}

func newBaseClient(timeout time.Duration, name string) *external.BaseClient {
	return external.NewBaseClient(&http.Client{Timeout: timeout}, name, models.AppName)
}
