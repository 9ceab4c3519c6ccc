package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"saman/internal/export"
	"saman/internal/export/sheets"
	"saman/internal/log"
)

func exportCmd(a *app) *cobra.Command {
	var (
		dir      string
		toStdout bool
		toSheets bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every expense as comma separated text",
		Long: `Export every expense, in store order, as comma separated text named
saman-expenses.csv. Fields are not quoted. With --sheets the same rows are
written to the configured Google spreadsheet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			l, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			snap := l.Snapshot()
			out := cmd.OutOrStdout()

			text := export.ToDelimitedText(snap.Expenses, snap.Categories)
			if toStdout {
				fmt.Fprintln(out, text)
			} else {
				if dir == "" {
					dir = a.cfg.ExportDir
				}
				path, err := export.WriteFile(dir, text)
				if err != nil {
					return err
				}
				a.logger.WithComponent(log.ComponentExport).Info("Export written",
					"path", path, log.FieldCount, len(snap.Expenses), log.FieldOperation, log.OpExport)
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✓ Exported %d expenses to %s", len(snap.Expenses), path)))
			}

			if !toSheets {
				return nil
			}
			if !a.cfg.MirrorEnabled() {
				return fmt.Errorf("--sheets needs GOOGLE_SPREADSHEET_ID and service account credentials")
			}
			client, err := sheets.New(ctx, sheets.Config{
				SpreadsheetID:   a.cfg.GoogleSpreadsheetID,
				SheetName:       a.cfg.GoogleSheetName,
				CredentialsJSON: a.cfg.GoogleServiceAccountJSON,
				CredentialsFile: a.cfg.GoogleServiceAccountFile,
			}, a.logger)
			if err != nil {
				return err
			}
			if err := client.Mirror(ctx, snap.Expenses, snap.Categories); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), successStyle.Render("✓ Spreadsheet updated"))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default EXPORT_DIR)")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "print the export instead of writing a file")
	cmd.Flags().BoolVar(&toSheets, "sheets", false, "also mirror the export to Google Sheets")
	return cmd
}
