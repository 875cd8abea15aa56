package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrcode/nightscout-insights/internal/config"
	"github.com/mrcode/nightscout-insights/internal/ingest"
	"github.com/mrcode/nightscout-insights/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the integrations ingest API",
	Long: `Run the HTTP service that receives Health Connect syncs from the phone and
serves the stored activity summary and meals to the desktop commands.
Configured from the environment: PORT, DATABASE_URL, INGEST_TOKEN, READ_TOKEN
and CORS_ORIGIN.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadIngest()
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg.Log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("preparing schema: %w", err)
	}

	srv, err := ingest.NewServer(cfg, store.NewRepository(pool), logger)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}
