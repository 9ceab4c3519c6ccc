package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"saman/internal/analytics"
	"saman/internal/core"
)

func expensesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "expenses",
		Aliases: []string{"expense", "exp"},
		Short:   "Record, list and delete expenses",
	}

	cmd.AddCommand(addExpenseCmd(a))
	cmd.AddCommand(deleteExpenseCmd(a))
	cmd.AddCommand(listExpensesCmd(a))

	return cmd
}

func addExpenseCmd(a *app) *cobra.Command {
	var amount, category, description, date string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an expense",
		Long: `Record an expense. The amount accepts either '.' or ',' as decimal
separator; the date defaults to today.`,
		Example: `  saman expenses add --amount 1250 --category groceries --description "Weekly shop"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			l, err := a.openLedger(ctx)
			if err != nil {
				return err
			}

			value, err := core.ParseAmount(amount)
			if err != nil {
				return fmt.Errorf("amount %q: %w", amount, err)
			}
			if date == "" {
				date = a.now().Format(core.DateLayout)
			}

			e, err := l.AddExpense(ctx, core.ExpenseInput{
				Date:        date,
				Amount:      value,
				Category:    category,
				Description: description,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✓ Recorded %s on %s (%s)",
				core.FormatMoney(e.Amount), core.FormatDisplayDate(e.Date),
				analytics.CategoryName(l.Categories(), e.Category))))
			fmt.Fprintln(cmd.OutOrStdout(), subtleStyle.Render("id: "+e.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "amount spent (required)")
	cmd.Flags().StringVar(&category, "category", "", "category id (required)")
	cmd.Flags().StringVar(&description, "description", "", "free text description")
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func deleteExpenseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an expense by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l, err := a.openLedger(ctx)
			if err != nil {
				return err
			}

			deleted, err := l.DeleteExpense(ctx, args[0])
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprintln(cmd.OutOrStdout(), warningStyle.Render("No expense with id "+args[0]))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ Deleted "+args[0]))
			return nil
		},
	}
}

func listExpensesCmd(a *app) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the expenses of the current view",
		Long: `List the expenses of the view selected by --view and --at, newest first.
With --recent N the view is ignored and the N most recently added expenses are shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			snap := l.Snapshot()

			var (
				rows  []core.Expense
				title string
			)
			if recent > 0 {
				rows = analytics.Recent(snap.Expenses, recent)
				title = fmt.Sprintf("Recent expenses (%d)", len(rows))
			} else {
				mode, ref, err := a.viewParams()
				if err != nil {
					return err
				}
				rows = analytics.Filter(snap.Expenses, mode, ref)
				title = viewTitle(mode, ref)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(title))
			if len(rows) == 0 {
				fmt.Fprintln(out, subtleStyle.Render("No expenses recorded."))
				return nil
			}
			writeExpenseTable(out, rows, snap.Categories)
			return nil
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 0, "show the N most recently added expenses instead of the view")
	return cmd
}

func writeExpenseTable(out io.Writer, rows []core.Expense, categories []core.Category) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("Date"),
		headerStyle.Render("Category"),
		headerStyle.Render("Description"),
		headerStyle.Render("Amount"),
		headerStyle.Render("ID"))
	for _, e := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			core.FormatDisplayDate(e.Date),
			analytics.CategoryName(categories, e.Category),
			e.Description,
			core.FormatMoney(e.Amount),
			subtleStyle.Render(e.ID))
	}
}
