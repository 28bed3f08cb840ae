package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"mediagen/internal/domain"
)

// WebhookRepositoryPG implements domain.WebhookRepository. The table is
// append-only; there is no update path.
type WebhookRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewWebhookRepository creates a webhook event repository backed by PostgreSQL.
func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepositoryPG {
	return &WebhookRepositoryPG{pool: pool}
}

// Create appends one inbound callback record.
func (r *WebhookRepositoryPG) Create(ctx context.Context, rec *domain.WebhookRecord) error {
	return r.pool.QueryRow(ctx, `
INSERT INTO webhook_events (id, provider, provider_job_id, job_id, event_type, payload, signature, verified)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, '')::uuid, $5, COALESCE($6, '{}'::jsonb), $7, $8)
RETURNING received_at;
`,
		rec.ID,
		rec.Provider,
		rec.ProviderJobID,
		rec.JobID,
		rec.EventType,
		nullableBytes(rec.Payload),
		rec.Signature,
		rec.Verified,
	).Scan(&rec.ReceivedAt)
}

// ListByProviderJobID returns stored events for a provider job id, oldest first.
func (r *WebhookRepositoryPG) ListByProviderJobID(ctx context.Context, providerJobID string, limit int) ([]domain.WebhookRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, provider, COALESCE(provider_job_id, ''), COALESCE(job_id::text, ''), event_type, payload, signature, verified, received_at
FROM webhook_events
WHERE provider_job_id = $1
ORDER BY received_at ASC
LIMIT $2;
`, providerJobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []domain.WebhookRecord
	for rows.Next() {
		var rec domain.WebhookRecord
		if err := rows.Scan(&rec.ID, &rec.Provider, &rec.ProviderJobID, &rec.JobID, &rec.EventType, &rec.Payload, &rec.Signature, &rec.Verified, &rec.ReceivedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

var _ domain.WebhookRepository = (*WebhookRepositoryPG)(nil)
