package handlers

import (
	"net/http"
	"strconv"

	"mediagen/internal/domain"
	"mediagen/internal/middleware"
)

const recentEntries = 10

func ledgerEntryView(e domain.CreditLedgerEntry) map[string]any {
	return map[string]any{
		"id":          e.ID,
		"amount":      e.Amount,
		"type":        string(e.Type),
		"description": e.Description,
		"job_id":      e.JobID,
		"created_at":  e.CreatedAt,
	}
}

// CreditBalance handles GET /v1/credits/balance: the current balance plus the
// most recent ledger entries.
func (a *App) CreditBalance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	bal, err := a.Ledger.CheckBalance(r.Context(), userID, 0)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	entries, err := a.Ledger.Entries(r.Context(), userID, recentEntries)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	recent := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		recent = append(recent, ledgerEntryView(e))
	}
	a.json(w, http.StatusOK, map[string]any{
		"balance": bal.Balance,
		"recent":  recent,
	})
}

// CreditCheck handles GET /v1/credits/check?kind=KIND. It is a read-only
// affordability probe; the authoritative check happens when a generation is
// actually submitted.
func (a *App) CreditCheck(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	kind := domain.JobKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = domain.JobKindImageThenVideo
	}
	cost, err := a.Workflow.Price(kind)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported kind")
		return
	}
	bal, err := a.Ledger.CheckBalance(r.Context(), userID, cost)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"kind":       string(kind),
		"cost":       cost,
		"balance":    bal.Balance,
		"sufficient": bal.Sufficient,
	})
}

// CreditHistory handles GET /v1/credits/history.
func (a *App) CreditHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	entries, err := a.Ledger.Entries(r.Context(), userID, limit)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, ledgerEntryView(e))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
