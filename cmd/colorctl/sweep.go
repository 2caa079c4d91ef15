package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tbourn/color-report-engine/internal/app"
)

func (c *cli) newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one recovery sweep",
		Long: `Flags unpaid protected reports for a single recovery reminder and
returns reports stuck in processing to draft so their owners can retry.`,
		Example: `  # Run from cron every ten minutes
  */10 * * * * colorctl sweep`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Recovery.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				now := time.Now()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Reminders due:        %s (protected since %s)\n",
					humanize.Comma(int64(res.RemindersDue)),
					humanize.RelTime(now.Add(-c.cfg.Recovery.ReminderAfter), now, "ago", "from now"))
				fmt.Fprintf(out, "Processing reverted:  %s (stuck since %s)\n",
					humanize.Comma(int64(res.ProcessingReverted)),
					humanize.RelTime(now.Add(-c.cfg.Recovery.StaleProcessingAfter), now, "ago", "from now"))
				return nil
			})
		},
	}
}
