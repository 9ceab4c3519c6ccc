// Package export renders the full expense list as delimited text.
//
// The format is deliberately naive: fields are joined with commas and never
// quoted, so a description containing a comma or newline produces extra
// columns or rows. Categories that no longer exist render as "undefined".
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"saman/internal/core"
)

const (
	// FileName is the name of the downloaded artifact.
	FileName = "saman-expenses.csv"

	// Orphan is written in place of a category name that cannot be resolved.
	Orphan = "undefined"
)

// Header is the first line of every export.
var Header = []string{"Date", "Amount (" + core.Currency + ")", "Category", "Description"}

// Rows returns one record per expense in store order, without the header.
func Rows(expenses []core.Expense, categories []core.Category) [][]string {
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		// first match wins, as with slug collisions
		if _, ok := names[c.ID]; !ok {
			names[c.ID] = c.Name
		}
	}

	rows := make([][]string, 0, len(expenses))
	for _, e := range expenses {
		name, ok := names[e.Category]
		if !ok {
			name = Orphan
		}
		rows = append(rows, []string{e.Date, core.FormatRaw(e.Amount), name, e.Description})
	}
	return rows
}

// ToDelimitedText renders the header and every expense, one per line.
func ToDelimitedText(expenses []core.Expense, categories []core.Category) string {
	lines := make([]string, 0, len(expenses)+1)
	lines = append(lines, strings.Join(Header, ","))
	for _, row := range Rows(expenses, categories) {
		lines = append(lines, strings.Join(row, ","))
	}
	return strings.Join(lines, "\n")
}

// WriteFile stores text as FileName inside dir and returns the full path.
func WriteFile(dir, text string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}
