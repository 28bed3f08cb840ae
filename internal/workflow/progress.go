package workflow

import (
	"time"

	"mediagen/internal/domain"
)

// Per-stage wall-clock budgets used only for advisory progress estimates.
const (
	imageStageBudget = 30 * time.Second
	videoStageBudget = 300 * time.Second
)

// ProgressEstimate is advisory display data. It never drives control
// decisions.
type ProgressEstimate struct {
	Percent    int `json:"percent"`
	ETASeconds int `json:"eta_seconds"`
}

// EstimateProgress compares elapsed time against the stage budget. ETA is
// clamped at zero; percent saturates at 99 until the job is actually done.
func EstimateProgress(job *domain.GenerationJob, now time.Time) ProgressEstimate {
	if job == nil {
		return ProgressEstimate{}
	}
	switch job.Status {
	case domain.JobStatusVideoReady:
		return ProgressEstimate{Percent: 100}
	case domain.JobStatusFailed:
		return ProgressEstimate{}
	case domain.JobStatusQueued:
		return ProgressEstimate{}
	case domain.JobStatusImageReady:
		return ProgressEstimate{Percent: 50}
	case domain.JobStatusPaused:
		return ProgressEstimate{Percent: 50}
	}

	budget := imageStageBudget
	if job.Status == domain.JobStatusGeneratingVideo {
		budget = videoStageBudget
	}
	start := job.CreatedAt
	if job.StartedAt != nil {
		start = *job.StartedAt
	}
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}

	remaining := budget - elapsed
	if remaining < 0 {
		remaining = 0
	}
	percent := int(elapsed * 100 / budget)
	if percent > 99 {
		percent = 99
	}
	return ProgressEstimate{Percent: percent, ETASeconds: int(remaining / time.Second)}
}
