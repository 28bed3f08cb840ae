package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediagen/internal/domain"
)

// Receiver handles inbound provider callbacks: verify the signature, persist
// the raw event before anything else touches it, and correlate it with a job.
// Interpreting the event (state transitions, refunds) is the orchestrator's
// job, not the receiver's.
type Receiver struct {
	webhooks domain.WebhookRepository
	jobs     domain.JobRepository
	secret   string
	logger   zerolog.Logger
}

// NewReceiver constructs a webhook receiver. An empty secret disables
// signature verification; this is a development accommodation and is logged
// as insecure on every intake.
func NewReceiver(webhooks domain.WebhookRepository, jobs domain.JobRepository, secret string, logger zerolog.Logger) *Receiver {
	return &Receiver{
		webhooks: webhooks,
		jobs:     jobs,
		secret:   secret,
		logger:   logger.With().Str("component", "webhook").Logger(),
	}
}

// IngestResult is the outcome of one intake. Job is nil when no local job
// correlates with the provider-assigned id.
type IngestResult struct {
	Record *domain.WebhookRecord
	Event  *domain.VideoWebhookEvent
	Job    *domain.GenerationJob
	// Processable is true when the event passed (or legitimately skipped)
	// signature verification and may drive a state transition.
	Processable bool
}

// Ingest persists the raw callback unconditionally, then verifies and
// correlates it. Persistence-before-processing guarantees no event is lost to
// a downstream crash; a record is stored even for unverifiable payloads and
// unknown jobs.
func (r *Receiver) Ingest(ctx context.Context, provider string, payload []byte, signatureHeader string) (*IngestResult, error) {
	verified := false
	skipped := false
	if r.secret == "" {
		skipped = true
		r.logger.Warn().Str("provider", provider).Msg("webhook signature verification skipped: no shared secret configured (insecure)")
	} else {
		verified = VerifySignature(payload, signatureHeader, r.secret)
	}

	var event domain.VideoWebhookEvent
	parseErr := json.Unmarshal(payload, &event)

	// The stored row records only what intake itself established: a skipped
	// verification stays verified=false, and correlation has not run yet so
	// job_id stays null (provider_job_id is the forensic correlation key).
	rec := &domain.WebhookRecord{
		ID:            uuid.NewString(),
		Provider:      provider,
		ProviderJobID: event.ProviderJobID,
		EventType:     string(event.Status),
		Payload:       payload,
		Signature:     signatureHeader,
		Verified:      verified,
	}
	if err := r.webhooks.Create(ctx, rec); err != nil {
		return nil, err
	}

	res := &IngestResult{Record: rec, Processable: verified || skipped}
	switch {
	case parseErr != nil:
		r.logger.Warn().Err(parseErr).Str("provider", provider).Msg("webhook payload not parseable, stored for forensics only")
		return res, nil
	case !res.Processable:
		r.logger.Warn().Str("provider", provider).Str("provider_job_id", event.ProviderJobID).Msg("webhook signature rejected, stored but not processed")
		return res, nil
	case event.ProviderJobID == "":
		r.logger.Warn().Str("provider", provider).Msg("webhook without provider job id, stored and dropped")
		return res, nil
	}

	job, err := r.Correlate(ctx, event.ProviderJobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn().Str("provider", provider).Str("provider_job_id", event.ProviderJobID).Msg("webhook for unknown job, stored and dropped")
			return res, nil
		}
		// Stored but not correlated; the caller's error answer makes the
		// provider redeliver, which lands as another row.
		return res, fmt.Errorf("webhook: correlate %s: %w", event.ProviderJobID, err)
	}
	res.Event = &event
	res.Job = job
	return res, nil
}

// Correlate looks up the job by its provider-assigned id.
func (r *Receiver) Correlate(ctx context.Context, providerJobID string) (*domain.GenerationJob, error) {
	return r.jobs.GetByProviderJobID(ctx, providerJobID)
}
