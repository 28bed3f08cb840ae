package handlers

import (
	"context"
	"io"
	"net/http"

	"mediagen/internal/webhook"
)

const maxWebhookBody = 1 << 20

// WebhookIngester persists and correlates an inbound provider callback.
type WebhookIngester interface {
	Ingest(ctx context.Context, provider string, payload []byte, signatureHeader string) (*webhook.IngestResult, error)
}

// VideoWebhook handles POST /v1/webhooks/video. The provider retries on
// non-2xx, so once the event is durably stored the answer is 200 regardless
// of what processing makes of it: a bad signature or an unknown job is our
// problem to investigate, not the provider's to redeliver.
func (a *App) VideoWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	res, err := a.Receiver.Ingest(r.Context(), "video", payload, r.Header.Get("X-Webhook-Signature"))
	if err != nil {
		// A 5xx makes the provider redeliver. A nil result means the event
		// was never stored; otherwise it is stored and only correlation
		// failed, and the redelivery lands as another row.
		if res == nil {
			a.Metrics.WebhookReceived("store_failed")
			a.Logger.Error().Err(err).Msg("webhook intake failed")
			a.error(w, http.StatusInternalServerError, "internal", "event not stored")
		} else {
			a.Metrics.WebhookReceived("correlate_failed")
			a.Logger.Error().Err(err).Msg("webhook stored but not correlated")
			a.error(w, http.StatusInternalServerError, "internal", "event stored, not processed")
		}
		return
	}

	switch {
	case !res.Processable:
		a.Metrics.WebhookReceived("rejected")
	case res.Job == nil || res.Event == nil:
		a.Metrics.WebhookReceived("dropped")
	default:
		a.Metrics.WebhookReceived("processed")
		if err := a.Workflow.HandleWebhook(r.Context(), res.Job, res.Event); err != nil {
			a.Logger.Error().Err(err).Str("job_id", res.Job.ID).Msg("webhook processing failed, event retained")
		}
	}
	a.json(w, http.StatusOK, map[string]string{"status": "received"})
}
