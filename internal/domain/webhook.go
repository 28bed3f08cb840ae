package domain

import (
	"encoding/json"
	"time"
)

// WebhookRecord is an append-only record of one inbound provider callback.
// Records are written before any processing happens and are never mutated.
type WebhookRecord struct {
	ID            string
	Provider      string
	ProviderJobID string
	JobID         string
	EventType     string
	Payload       json.RawMessage
	Signature     string
	Verified      bool
	ReceivedAt    time.Time
}

// VideoWebhookStatus enumerates the statuses a video provider reports.
type VideoWebhookStatus string

const (
	VideoWebhookProcessing VideoWebhookStatus = "processing"
	VideoWebhookCompleted  VideoWebhookStatus = "completed"
	VideoWebhookFailed     VideoWebhookStatus = "failed"
)

// VideoWebhookEvent is the parsed payload of a video provider callback.
type VideoWebhookEvent struct {
	ProviderJobID      string             `json:"provider_job_id"`
	Status             VideoWebhookStatus `json:"status"`
	VideoURL           string             `json:"video_url,omitempty"`
	ThumbnailURL       string             `json:"thumbnail_url,omitempty"`
	ErrorMessage       string             `json:"error_message,omitempty"`
	ProgressPercentage int                `json:"progress_percentage,omitempty"`
	Metadata           json.RawMessage    `json:"metadata,omitempty"`
}
