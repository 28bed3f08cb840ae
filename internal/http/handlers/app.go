package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/ledger"
	"mediagen/internal/metrics"
	"mediagen/internal/stream"
	"mediagen/internal/workflow"
)

// App bundles the handlers' collaborators.
type App struct {
	Workflow *workflow.Orchestrator
	Ledger   *ledger.Service
	Jobs     domain.JobRepository
	Assets   domain.AssetRepository
	Users    domain.UserRepository
	Hub      *stream.Hub
	Receiver WebhookIngester
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errCode, Message: message})
}

// domainError maps sentinel errors onto HTTP responses. Unknown errors are
// logged and answered with a generic 500 so internals never leak.
func (a *App) domainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrInvalidPrompt):
		a.error(w, http.StatusUnprocessableEntity, "invalid_prompt", err.Error())
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "credit balance does not cover this generation")
	case errors.Is(err, domain.ErrJobTerminal):
		a.error(w, http.StatusConflict, "job_terminal", "job already reached a terminal status")
	case errors.Is(err, domain.ErrJobNotPausable):
		a.error(w, http.StatusConflict, "job_not_pausable", "job is not in a pausable status")
	case errors.Is(err, domain.ErrJobNotPaused):
		a.error(w, http.StatusConflict, "job_not_paused", "job is not paused")
	case errors.Is(err, domain.ErrConflict):
		a.error(w, http.StatusConflict, "conflict", "job changed concurrently, re-read its status")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "not allowed")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
