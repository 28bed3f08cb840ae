package domain

import (
	"encoding/json"
	"time"
)

// JobKind enumerates supported generation workflows.
type JobKind string

const (
	JobKindImage          JobKind = "IMAGE"
	JobKindImageThenVideo JobKind = "IMAGE_THEN_VIDEO"
)

// Valid reports whether k is a known kind.
func (k JobKind) Valid() bool {
	return k == JobKindImage || k == JobKindImageThenVideo
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued          JobStatus = "QUEUED"
	JobStatusGeneratingImage JobStatus = "GENERATING_IMAGE"
	JobStatusImageReady      JobStatus = "IMAGE_READY"
	JobStatusGeneratingVideo JobStatus = "GENERATING_VIDEO"
	JobStatusPaused          JobStatus = "PAUSED"
	JobStatusVideoReady      JobStatus = "VIDEO_READY"
	JobStatusFailed          JobStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are permitted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusVideoReady || s == JobStatusFailed
}

// NonTerminalStatuses lists every status a job can still move out of.
func NonTerminalStatuses() []JobStatus {
	return []JobStatus{
		JobStatusQueued,
		JobStatusGeneratingImage,
		JobStatusImageReady,
		JobStatusGeneratingVideo,
		JobStatusPaused,
	}
}

// PausableStatuses lists the statuses a user may pause from.
func PausableStatuses() []JobStatus {
	return []JobStatus{JobStatusImageReady, JobStatusGeneratingVideo}
}

// GenerationJob tracks one user-initiated generation request through the
// two-stage workflow.
type GenerationJob struct {
	ID        string
	UserID    string
	ProjectID string
	Kind      JobKind
	Status    JobStatus

	Prompt      string
	ImagePrompt string
	VideoPrompt string

	Provider      string
	ProviderJobID string

	// Cost is reserved at creation and never changes afterward.
	Cost int

	ImageAssetID string
	VideoAssetID string

	// PrePauseStatus holds the status to restore on resume. Empty unless paused.
	PrePauseStatus JobStatus

	ErrorMessage string
	ErrorCode    string

	// ProviderMetadata is diagnostic only, never consulted for control decisions.
	ProviderMetadata json.RawMessage

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}
