// This file implements parsing of request bodies and view parameters. Bodies
// may be JSON objects or form-encoded; both reach handlers through the same
// accessor.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"saman/internal/core"
)

// maxBodyBytes caps request bodies; every payload here is a handful of fields.
const maxBodyBytes = 64 << 10

// ViewParams is the view mode and reference instant of a read request.
type ViewParams struct {
	Mode core.ViewMode
	At   time.Time
}

// ParseViewParams reads ?view=daily|monthly and ?at=YYYY-MM-DD. Missing values
// default to daily and now; present but invalid values are errors.
func ParseViewParams(query url.Values, now time.Time) (ViewParams, error) {
	params := ViewParams{Mode: core.Daily, At: now}

	if v := strings.TrimSpace(query.Get("view")); v != "" {
		mode, err := core.ParseViewMode(v)
		if err != nil {
			return ViewParams{}, err
		}
		params.Mode = mode
	}
	if v := strings.TrimSpace(query.Get("at")); v != "" {
		at, err := core.ParseDate(v, now.Location())
		if err != nil {
			return ViewParams{}, err
		}
		params.At = at
	}
	return params, nil
}

// RequestBodyParser handles JSON and form-encoded request bodies.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body of r once, up to maxBodyBytes.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errors.New("request body too large")
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(trimmed, "{") || strings.Contains(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	return sanitizeInput(p.GetRaw(key))
}

// GetRaw returns the value exactly as sent, for free text that is stored and
// exported verbatim.
func (p *RequestBodyParser) GetRaw(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return stringValue(val)
		}
		return ""
	}
	if p.formData != nil {
		return p.formData.Get(key)
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// ExpenseInput builds a core.ExpenseInput from the body. Amounts may be JSON
// numbers or decimal strings with either separator. The description is kept
// verbatim.
func (p *RequestBodyParser) ExpenseInput() (core.ExpenseInput, error) {
	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return core.ExpenseInput{}, err
	}
	return core.ExpenseInput{
		Date:        p.Get("date"),
		Amount:      amount,
		Category:    p.Get("category"),
		Description: p.GetRaw("description"),
	}, nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
