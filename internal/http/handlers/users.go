package handlers

import (
	"net/http"

	"mediagen/internal/middleware"
)

// Me handles GET /v1/me: the authenticated user's profile and plan.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":             user.ID,
		"email":          user.Email,
		"plan":           user.Plan,
		"credit_balance": user.CreditBalance,
		"created_at":     user.CreatedAt,
	})
}
