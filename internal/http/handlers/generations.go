package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mediagen/internal/domain"
	"mediagen/internal/middleware"
	"mediagen/internal/workflow"
)

type generateRequest struct {
	Kind      string `json:"kind"`
	Prompt    string `json:"prompt"`
	ProjectID string `json:"project_id"`
	Style     string `json:"style"`
	Quality   string `json:"quality"`
	Size      string `json:"size"`
}

type jobView struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id,omitempty"`
	Kind         string          `json:"kind"`
	Status       string          `json:"status"`
	Prompt       string          `json:"prompt"`
	Cost         int             `json:"cost"`
	Progress     int             `json:"progress"`
	ETASeconds   int             `json:"eta_seconds"`
	ImageURL     string          `json:"image_url,omitempty"`
	VideoURL     string          `json:"video_url,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (a *App) jobView(r *http.Request, job *domain.GenerationJob) jobView {
	est := a.Workflow.Progress(job)
	view := jobView{
		ID:           job.ID,
		ProjectID:    job.ProjectID,
		Kind:         string(job.Kind),
		Status:       string(job.Status),
		Prompt:       job.Prompt,
		Cost:         job.Cost,
		Progress:     est.Percent,
		ETASeconds:   est.ETASeconds,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		Metadata:     job.ProviderMetadata,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		UpdatedAt:    job.UpdatedAt,
	}
	// Asset URLs are a display nicety; a lookup failure degrades the view,
	// not the request.
	if job.ImageAssetID != "" || job.VideoAssetID != "" {
		if assets, err := a.Assets.ListByJobID(r.Context(), job.ID); err == nil {
			for _, asset := range assets {
				switch {
				case asset.ID == job.ImageAssetID:
					view.ImageURL = asset.URL
				case asset.ID == job.VideoAssetID:
					view.VideoURL = asset.URL
				}
			}
		}
	}
	return view
}

// Generate handles POST /v1/generations.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	kind := domain.JobKind(req.Kind)
	if req.Kind == "" {
		kind = domain.JobKindImageThenVideo
	}
	if !kind.Valid() {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported kind")
		return
	}

	job, err := a.Workflow.Submit(r.Context(), workflow.SubmitRequest{
		UserID:    userID,
		ProjectID: req.ProjectID,
		Kind:      kind,
		Prompt:    req.Prompt,
		Style:     req.Style,
		Quality:   req.Quality,
		Size:      req.Size,
	})
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, a.jobView(r, job))
}

// GetGeneration handles GET /v1/generations/{job_id}.
func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	job, ok := a.ownedJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, a.jobView(r, job))
}

// ListGenerations handles GET /v1/generations.
func (a *App) ListGenerations(w http.ResponseWriter, r *http.Request) {
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
	jobs, err := a.Jobs.ListForUser(r.Context(), userID, limit)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	items := make([]jobView, 0, len(jobs))
	for i := range jobs {
		items = append(items, a.jobView(r, &jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// CancelGeneration handles POST /v1/generations/{job_id}/cancel.
func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	userID, jobID, ok := a.jobParams(w, r)
	if !ok {
		return
	}
	job, err := a.Workflow.Cancel(r.Context(), userID, jobID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.jobView(r, job))
}

// PauseGeneration handles POST /v1/generations/{job_id}/pause.
func (a *App) PauseGeneration(w http.ResponseWriter, r *http.Request) {
	userID, jobID, ok := a.jobParams(w, r)
	if !ok {
		return
	}
	job, err := a.Workflow.Pause(r.Context(), userID, jobID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.jobView(r, job))
}

// ResumeGeneration handles POST /v1/generations/{job_id}/resume.
func (a *App) ResumeGeneration(w http.ResponseWriter, r *http.Request) {
	userID, jobID, ok := a.jobParams(w, r)
	if !ok {
		return
	}
	job, err := a.Workflow.Resume(r.Context(), userID, jobID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.jobView(r, job))
}

func (a *App) jobParams(w http.ResponseWriter, r *http.Request) (userID, jobID string, ok bool) {
	userID = middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return "", "", false
	}
	jobID = chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return "", "", false
	}
	return userID, jobID, true
}

func (a *App) ownedJob(w http.ResponseWriter, r *http.Request) (*domain.GenerationJob, bool) {
	userID, jobID, ok := a.jobParams(w, r)
	if !ok {
		return nil, false
	}
	job, err := a.Jobs.GetForUser(r.Context(), jobID, userID)
	if err != nil {
		a.domainError(w, r, err)
		return nil, false
	}
	return job, true
}
