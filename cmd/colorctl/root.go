package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/color-report-engine/internal/app"
	"github.com/tbourn/color-report-engine/internal/config"
	"github.com/tbourn/color-report-engine/internal/sysutil"
)

// cli carries the configuration loaded once by the root command.
type cli struct {
	cfg config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:   "colorctl",
		Short: "Operate the color report engine",
		Long: `colorctl manages a color report engine deployment.

It reads the same environment (and optional .env file) as the API server,
so DB_DRIVER, DB_PATH and DATABASE_URL select the database to work on.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			sysutil.SetupLogger(cmd.ErrOrStderr(), cfg.LogLevel, true, "colorctl")
			c.cfg = cfg
			return nil
		},
	}

	cmd.AddCommand(
		c.newMigrateCmd(),
		c.newSweepCmd(),
		c.newCreditsCmd(),
		c.newPaymentsCmd(),
	)
	return cmd
}

// withApp opens the engine for the duration of fn.
func (c *cli) withApp(ctx context.Context, fn func(*app.App) error) error {
	a, err := app.Open(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
