package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tbourn/color-report-engine/internal/app"
)

func (c *cli) newPaymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "Inspect payment webhook outcomes",
	}
	cmd.AddCommand(c.newUnresolvedCmd())
	return cmd
}

func (c *cli) newUnresolvedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "unresolved",
		Short: "List paid checkouts that could not be credited",
		Long: `Lists checkout events that were acknowledged but not credited because
the buyer or the amount could not be matched. Resolve them with
"colorctl credits grant ... --ref <event id>".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				rows, err := a.Payments.Unresolved(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "no unresolved payments")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "EVENT\tWHEN\tEMAIL\tUSER\tAMOUNT\tREASON")
				for _, p := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t$%s\t%s\n",
						p.EventID, humanize.Time(p.CreatedAt), p.Email, p.UserID,
						humanize.CommafWithDigits(float64(p.AmountCents)/100, 2), p.Reason)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to list")
	return cmd
}
