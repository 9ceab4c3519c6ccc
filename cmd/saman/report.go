package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"saman/internal/analytics"
	"saman/internal/core"
)

const barWidth = 30

func viewTitle(mode core.ViewMode, ref time.Time) string {
	if mode == core.Monthly {
		return "Expenses in " + ref.Format("January")
	}
	return "Expenses on " + ref.Format("02/01/2006")
}

func summaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show the summary figures of the current view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.dashboard(cmd)
			if err != nil {
				return err
			}
			renderSummary(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

func chartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chart",
		Short: "Show the category breakdown and the last 7 days of spending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.dashboard(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			renderBreakdown(out, d.Breakdown)
			fmt.Fprintln(out)
			renderSeries(out, d.Series)
			return nil
		},
	}
}

func (a *app) dashboard(cmd *cobra.Command) (analytics.Dashboard, error) {
	mode, ref, err := a.viewParams()
	if err != nil {
		return analytics.Dashboard{}, err
	}
	l, err := a.openLedger(cmd.Context())
	if err != nil {
		return analytics.Dashboard{}, err
	}
	snap := l.Snapshot()
	return analytics.BuildDashboard(snap.Expenses, snap.Categories, snap.Budget, mode, ref), nil
}

func renderSummary(out io.Writer, d analytics.Dashboard) {
	ref, _ := time.Parse(core.DateLayout, d.Date)
	s := d.Summary

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total spent\t%s\n", core.FormatMoney(s.TotalSpent))
	fmt.Fprintf(w, "Average daily\t%s\n", core.FormatMoney(s.AverageDaily))
	fmt.Fprintf(w, "Budget\t%s\n", core.FormatMoney(s.Budget))
	fmt.Fprintf(w, "Remaining\t%s\n", core.FormatMoney(s.Remaining))
	fmt.Fprintf(w, "Spent\t%s\n", statusStyle(s.Status).Render(fmt.Sprintf("%.1f%% (%s)", s.PercentageSpent, s.Status)))
	fmt.Fprintf(w, "Left\t%.1f%%\n", s.PercentageLeft)
	if s.Highest.Category != "" {
		fmt.Fprintf(w, "Top category\t%s %s\n", s.HighestName, subtleStyle.Render(core.FormatMoney(s.Highest.Amount)))
	} else {
		fmt.Fprintf(w, "Top category\t%s\n", subtleStyle.Render("none"))
	}
	fmt.Fprintf(w, "Expenses\t%d\n", s.Count)
	_ = w.Flush()

	fmt.Fprintln(out, titleStyle.Render(viewTitle(d.View, ref)))
	fmt.Fprintln(out, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

func renderBreakdown(out io.Writer, slices []analytics.Slice) {
	fmt.Fprintln(out, titleStyle.Render("By category"))
	if len(slices) == 0 {
		fmt.Fprintln(out, subtleStyle.Render("Nothing to chart."))
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()
	for _, s := range slices {
		blocks := lipgloss.NewStyle().Foreground(lipgloss.Color(s.Color)).Render(bar(s.Percent, 100))
		fmt.Fprintf(w, "%s\t%s\t%5.1f%%\t%s\n", s.Name, blocks, s.Percent, core.FormatMoney(s.Amount))
	}
}

func renderSeries(out io.Writer, buckets []analytics.Bucket) {
	fmt.Fprintln(out, titleStyle.Render("Daily spending"))
	if len(buckets) == 0 {
		fmt.Fprintln(out, subtleStyle.Render("Nothing to chart."))
		return
	}

	scale := buckets[0].WeeklyBudgetLine
	for _, b := range buckets {
		scale = math.Max(scale, b.Spent)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()
	for _, b := range buckets {
		style := successStyle
		if b.WeeklyBudgetLine > 0 && b.Spent > b.WeeklyBudgetLine {
			style = errorStyle
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.Label, style.Render(bar(b.Spent, scale)), core.FormatMoney(b.Spent))
	}
	if line := buckets[0].WeeklyBudgetLine; line > 0 {
		fmt.Fprintf(w, "%s\t%s\t%s\n", "budget", subtleStyle.Render(bar(line, scale)), core.FormatMoney(line))
	}
}

// bar renders value as a block bar relative to max.
func bar(value, max float64) string {
	if max <= 0 || value <= 0 {
		return ""
	}
	n := int(math.Round(value / max * barWidth))
	if n < 1 {
		n = 1
	}
	if n > barWidth {
		n = barWidth
	}
	return strings.Repeat("█", n)
}
