package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tbourn/color-report-engine/internal/app"
	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/services"
)

func (c *cli) newCreditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and adjust credit balances",
	}
	cmd.AddCommand(c.newBalanceCmd(), c.newGrantCmd(), c.newAuditCmd())
	return cmd
}

func (c *cli) newBalanceCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "balance <email>",
		Short: "Show a user's balance and recent ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := services.NormalizeEmail(args[0])
			return c.withApp(cmd.Context(), func(a *app.App) error {
				bal, err := a.Ledger.Balance(cmd.Context(), user)
				if err != nil {
					return err
				}
				items, total, err := a.Ledger.History(cmd.Context(), user, 1, limit)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %s credits (%s ledger entries)\n", user, humanize.Comma(bal), humanize.Comma(total))
				if len(items) == 0 {
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "WHEN\tTYPE\tAMOUNT\tDESCRIPTION")
				for _, e := range items {
					fmt.Fprintf(tw, "%s\t%s\t%+d\t%s\n", humanize.Time(e.CreatedAt), e.Type, e.Amount, e.Description)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent entries to show")
	return cmd
}

func (c *cli) newGrantCmd() *cobra.Command {
	var (
		reason string
		ref    string
	)
	cmd := &cobra.Command{
		Use:   "grant <email> <credits>",
		Short: "Grant bonus credits with a ledger entry",
		Example: `  # Goodwill credit after a support ticket, applied at most once
  colorctl credits grant jane@example.com 2 --reason "support #812" --ref support-812`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := services.NormalizeEmail(args[0])
			var amount int64
			if _, err := fmt.Sscan(args[1], &amount); err != nil || amount <= 0 {
				return fmt.Errorf("credits must be a positive integer, got %q", args[1])
			}
			var externalID *string
			if ref != "" {
				externalID = &ref
			}

			return c.withApp(cmd.Context(), func(a *app.App) error {
				err := a.Ledger.Credit(cmd.Context(), user, amount, domain.CreditBonus, reason, externalID)
				if errors.Is(err, services.ErrAlreadyApplied) {
					fmt.Fprintf(cmd.OutOrStdout(), "grant %q was already applied, nothing changed\n", ref)
					return nil
				}
				if err != nil {
					return err
				}
				bal, err := a.Ledger.Balance(cmd.Context(), user)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s, balance now %s\n",
					humanize.Comma(amount), user, humanize.Comma(bal))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "operator grant", "Ledger entry description")
	cmd.Flags().StringVar(&ref, "ref", "", "Reference that makes the grant idempotent")
	return cmd
}

func (c *cli) newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <email>...",
		Short: "Check that balances match the sum of their ledger entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				var drifted int
				for _, arg := range args {
					user := services.NormalizeEmail(arg)
					bal, logged, err := a.Ledger.Audit(cmd.Context(), user)
					switch {
					case errors.Is(err, services.ErrIntegrity):
						drifted++
						fmt.Fprintf(cmd.OutOrStdout(), "DRIFT  %s balance=%d log=%d\n", user, bal, logged)
					case err != nil:
						return err
					default:
						fmt.Fprintf(cmd.OutOrStdout(), "ok     %s balance=%d\n", user, bal)
					}
				}
				if drifted > 0 {
					return fmt.Errorf("%d of %d accounts drifted from their ledger", drifted, len(args))
				}
				return nil
			})
		},
	}
}
