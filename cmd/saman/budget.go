package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"saman/internal/core"
)

func budgetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show or set the monthly budget",
	}

	cmd.AddCommand(showBudgetCmd(a))
	cmd.AddCommand(setBudgetCmd(a))

	return cmd
}

func showBudgetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the monthly budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			b := l.Budget()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
				titleStyle.Render("Monthly budget:"),
				core.FormatMoney(b.Amount),
				subtleStyle.Render("(set "+b.Month+")"))
			return nil
		},
	}
}

func setBudgetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "set <amount>",
		Short:   "Replace the monthly budget",
		Example: `  saman budget set 50000`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l, err := a.openLedger(ctx)
			if err != nil {
				return err
			}

			amount, err := core.ParseAmount(args[0])
			if err != nil {
				return fmt.Errorf("budget %q: %w", args[0], core.ErrInvalidBudget)
			}
			b, err := l.UpdateBudget(ctx, amount)
			if err != nil {
				return fmt.Errorf("budget %q: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(
				fmt.Sprintf("✓ Budget set to %s for %s", core.FormatMoney(b.Amount), b.Month)))
			return nil
		},
	}
}
