package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"saman/internal/core"
)

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	assert.ErrorIs(t, err, ErrMissingSpreadsheetID)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "abc"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")

	_, err = New(context.Background(), Config{SpreadsheetID: "abc", CredentialsFile: "/does/not/exist.json"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}

func TestValues(t *testing.T) {
	expenses := []core.Expense{
		{Date: "2024-03-01", Amount: 100, Category: "groceries", Description: "weekly"},
		{Date: "2024-03-02", Amount: 7.5, Category: "deleted"},
	}
	got := Values(expenses, core.DefaultCategories())

	want := [][]any{
		{"Date", "Amount (PKR)", "Category", "Description"},
		{"2024-03-01", "100", "Groceries", "weekly"},
		{"2024-03-02", "7.5", "undefined", ""},
	}
	assert.Equal(t, want, got)
}

func TestMirrorClearsThenWrites(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
		body  gsheet.ValueRange
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, ":clear"):
			calls = append(calls, "clear")
		case r.Method == http.MethodPut:
			calls = append(calls, "update:"+r.URL.Query().Get("valueInputOption"))
			_ = json.NewDecoder(r.Body).Decode(&body)
		default:
			calls = append(calls, r.Method+" "+r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-1"}, nil,
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
	)
	require.NoError(t, err)

	err = c.Mirror(context.Background(),
		[]core.Expense{{Date: "2024-03-01", Amount: 12, Category: "rent", Description: "x"}},
		core.DefaultCategories())
	require.NoError(t, err)

	assert.Equal(t, []string{"clear", "update:RAW"}, calls)
	require.Len(t, body.Values, 2)
	assert.Equal(t, []any{"2024-03-01", "12", "Rent", "x"}, body.Values[1])
}
