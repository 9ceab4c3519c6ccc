// Package sheets mirrors the expense export into a Google Sheets tab.
//
// The tab is cleared and rewritten on every call so it always equals the
// delimited export, header row included.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"saman/internal/core"
	"saman/internal/export"
	"saman/internal/log"
)

// DefaultSheetName is used when Config.SheetName is empty.
const DefaultSheetName = "Expenses"

var ErrMissingSpreadsheetID = errors.New("missing spreadsheet id")

type Config struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// New authenticates with service account credentials and returns a Client.
// Extra client options (endpoint, HTTP client) are appended after the
// credentials.
func New(ctx context.Context, cfg Config, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, ErrMissingSpreadsheetID
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	if len(opts) == 0 {
		creds, err := credentials(cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = DefaultSheetName
	}

	logger.InfoContext(ctx, "Sheets mirror ready", "spreadsheet_id", cfg.SpreadsheetID, "sheet", name)
	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: name, logger: logger}, nil
}

func credentials(cfg Config) ([]byte, error) {
	if js := strings.TrimSpace(cfg.CredentialsJSON); js != "" {
		return []byte(js), nil
	}
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
}

// Mirror replaces the sheet content with the export of expenses.
func (c *Client) Mirror(ctx context.Context, expenses []core.Expense, categories []core.Category) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rng := c.sheetName + "!A:D"
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}

	values := Values(expenses, categories)
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.sheetName+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", c.sheetName, err)
	}

	c.logger.InfoContext(ctx, "Sheet mirrored",
		log.FieldCount, len(expenses), log.FieldOperation, log.OpMirror)
	return nil
}

// Values builds the header plus one row per expense as Sheets cell values.
func Values(expenses []core.Expense, categories []core.Category) [][]any {
	rows := export.Rows(expenses, categories)
	values := make([][]any, 0, len(rows)+1)
	values = append(values, toCells(export.Header))
	for _, row := range rows {
		values = append(values, toCells(row))
	}
	return values
}

func toCells(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
