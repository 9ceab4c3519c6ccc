package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"saman/internal/analytics"
	"saman/internal/cache"
	"saman/internal/core"
	"saman/internal/export"
	"saman/internal/ledger"
	"saman/internal/log"
)

// expenseView is an expense as listed by the API, with display fields resolved.
type expenseView struct {
	core.Expense
	CategoryName string `json:"category_name"`
	DisplayDate  string `json:"display_date"`
	Display      string `json:"display_amount"`
}

type expenseList struct {
	View     core.ViewMode `json:"view"`
	Date     string        `json:"date"`
	Count    int           `json:"count"`
	Expenses []expenseView `json:"expenses"`
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports the ledger state and the in-process helpers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status, code := "ready", http.StatusOK
	checks := map[string]any{
		"cache":        map[string]any{"dashboard_entries": s.dashboards.Size(), "status": "ok"},
		"rate_limiter": map[string]any{"active_clients": s.rateLimiter.activeClients(), "status": "ok"},
		"security":     s.metrics.snapshot(),
	}
	if s.ledger == nil {
		checks["ledger"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["ledger"] = map[string]any{"revision": s.ledger.Revision(), "status": "ok"}
	}

	NewResponse().Status(code).JSON(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	params, err := ParseViewParams(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	NewResponse().JSON(s.dashboard(r.Context(), params)).Write(w)
}

// snapshot picks up writes made to the store by other processes, then copies
// the ledger. A failed refresh is logged and the in-memory state is served.
func (s *Server) snapshot(ctx context.Context) ledger.Snapshot {
	if _, err := s.ledger.Refresh(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Ledger refresh failed, serving last known state",
			log.FieldError, err, log.FieldErrorType, log.ErrorTypeDatabase, log.FieldOperation, log.OpRead)
	}
	return s.ledger.Snapshot()
}

// dashboard builds or reuses the dashboard for params against one snapshot.
func (s *Server) dashboard(ctx context.Context, params ViewParams) analytics.Dashboard {
	snap := s.snapshot(ctx)
	key := cache.ViewKey(snap.Revision, params.Mode, params.At)
	d, hit := cache.GetOrCompute[analytics.Dashboard](s.dashboards, key, func() analytics.Dashboard {
		return analytics.BuildDashboard(snap.Expenses, snap.Categories, snap.Budget, params.Mode, params.At)
	})
	log.FromContext(ctx).DebugContext(ctx, "Dashboard served",
		log.FieldKey, key, log.FieldViewMode, params.Mode, "cache_hit", hit, log.FieldCount, d.Summary.Count)
	return d
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	params, err := ParseViewParams(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ctx := r.Context()
	snap := s.snapshot(ctx)
	filtered := analytics.Filter(snap.Expenses, params.Mode, params.At)
	log.FromContext(ctx).DebugContext(ctx, "Expenses listed",
		log.FieldOperation, log.OpList, log.FieldViewMode, params.Mode, log.FieldCount, len(filtered))

	out := expenseList{
		View:     params.Mode,
		Date:     params.At.Format(core.DateLayout),
		Count:    len(filtered),
		Expenses: make([]expenseView, 0, len(filtered)),
	}
	for _, e := range filtered {
		out.Expenses = append(out.Expenses, expenseView{
			Expense:      e,
			CategoryName: analytics.CategoryName(snap.Categories, e.Category),
			DisplayDate:  core.FormatDisplayDate(e.Date),
			Display:      core.FormatMoney(e.Amount),
		})
	}
	NewResponse().JSON(out).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	in, err := parser.ExpenseInput()
	if err != nil {
		s.writeError(w, r, err, log.OpCreate)
		return
	}
	if in.Date == "" {
		in.Date = s.now().Format(core.DateLayout)
	}

	e, err := s.ledger.AddExpense(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err, log.OpCreate)
		return
	}
	NewResponse().Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+e.ID).
		JSON(e).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := sanitizeInput(r.PathValue("id"))
	deleted, err := s.ledger.DeleteExpense(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, log.OpDelete)
		return
	}
	NewResponse().JSON(map[string]any{"id": id, "deleted": deleted}).Write(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.snapshot(r.Context()).Categories).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	c, err := s.ledger.AddCategory(r.Context(), parser.Get("name"))
	if err != nil {
		s.writeError(w, r, err, log.OpCreate)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(c).Write(w)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.snapshot(r.Context()).Budget).Write(w)
}

// handleUpdateBudget replaces the budget. Invalid amounts answer 422 and the
// current budget is left as it was.
func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	amount, err := core.ParseAmount(parser.Get("amount"))
	if err != nil {
		s.writeError(w, r, core.ErrInvalidBudget, log.OpUpdate)
		return
	}
	b, err := s.ledger.UpdateBudget(r.Context(), amount)
	if err != nil {
		s.writeError(w, r, err, log.OpUpdate)
		return
	}
	NewResponse().JSON(b).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(r.Context())
	text := export.ToDelimitedText(snap.Expenses, snap.Categories)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Export served",
		log.FieldOperation, log.OpExport, log.FieldCount, len(snap.Expenses))
	NewResponse().
		Text("text/csv; charset=utf-8", text).
		Attachment(export.FileName).
		Write(w)
}

// writeError maps domain errors to 4xx responses and everything else to 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	ctx := r.Context()
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidBudget),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrMissingCategory),
		errors.Is(err, core.ErrEmptyCategoryName):
		log.FromContext(ctx).WarnContext(ctx, "Request rejected",
			log.NewFields().WithError(err).WithErrorType(log.ErrorTypeValidation).WithOperation(op).ToSlice()...)
		UnprocessableEntityError(err.Error()).Write(w)
	case errors.Is(err, core.ErrInvalidViewMode):
		BadRequestError(err.Error()).Write(w)
	default:
		s.structured.LogError(ctx, "Ledger operation failed", err, log.ComponentLedger, op,
			log.NewFields().WithErrorType(log.ErrorTypeDatabase))
		InternalServerError("internal error").Write(w)
	}
}
