package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediagen/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, user_id, project_id, kind, status, prompt, image_prompt, video_prompt,
provider, provider_job_id, cost, image_asset_id, video_asset_id, pre_pause_status,
error_message, error_code, provider_metadata, created_at, started_at, completed_at, updated_at`

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	query := `
INSERT INTO generation_jobs (id, user_id, project_id, kind, status, prompt, image_prompt, video_prompt, provider, cost, provider_metadata)
VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, '{}'::jsonb));
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.ProjectID,
		job.Kind,
		job.Status,
		job.Prompt,
		job.ImagePrompt,
		job.VideoPrompt,
		job.Provider,
		job.Cost,
		nullableBytes(job.ProviderMetadata),
	)
	return err
}

// GetByID fetches a job by identifier without an ownership check. Reserved
// for internal paths (webhook correlation, reaper).
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1;`
	return r.scanJob(r.pool.QueryRow(ctx, query, jobID))
}

// GetForUser fetches a job scoped to its owner.
func (r *JobRepositoryPG) GetForUser(ctx context.Context, jobID, userID string) (*domain.GenerationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1 AND user_id = $2;`
	return r.scanJob(r.pool.QueryRow(ctx, query, jobID, userID))
}

// GetByProviderJobID fetches the job correlated with a provider-assigned id.
func (r *JobRepositoryPG) GetByProviderJobID(ctx context.Context, providerJobID string) (*domain.GenerationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE provider_job_id = $1;`
	return r.scanJob(r.pool.QueryRow(ctx, query, providerJobID))
}

// ListForUser returns the user's most recent jobs.
func (r *JobRepositoryPG) ListForUser(ctx context.Context, userID string, limit int) ([]domain.GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.GenerationJob
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// TransitionStatus applies a compare-and-set status change. The UPDATE is
// keyed on the expected prior statuses; zero rows affected means another
// writer got there first (or the transition is illegal from the current
// state), reported as ok=false rather than an error.
func (r *JobRepositoryPG) TransitionStatus(ctx context.Context, jobID string, from []domain.JobStatus, to domain.JobStatus, upd domain.JobUpdate) (bool, error) {
	fromStrs := make([]string, 0, len(from))
	for _, s := range from {
		fromStrs = append(fromStrs, string(s))
	}
	query := `
UPDATE generation_jobs
SET status = $3,
    updated_at = NOW(),
    provider_job_id = COALESCE($4, provider_job_id),
    image_asset_id = COALESCE($5::uuid, image_asset_id),
    video_asset_id = COALESCE($6::uuid, video_asset_id),
    image_prompt = COALESCE($7, image_prompt),
    video_prompt = COALESCE($8, video_prompt),
    pre_pause_status = CASE WHEN $3 = 'PAUSED' THEN $9 ELSE NULL END,
    error_message = COALESCE($10, error_message),
    error_code = COALESCE($11, error_code),
    started_at = COALESCE($12, started_at),
    completed_at = COALESCE($13, completed_at)
WHERE id = $1 AND status = ANY($2);
`
	var prePause *string
	if upd.PrePauseStatus != nil {
		s := string(*upd.PrePauseStatus)
		prePause = &s
	}
	tag, err := r.pool.Exec(ctx, query,
		jobID,
		fromStrs,
		string(to),
		upd.ProviderJobID,
		upd.ImageAssetID,
		upd.VideoAssetID,
		upd.ImagePrompt,
		upd.VideoPrompt,
		prePause,
		upd.ErrorMessage,
		upd.ErrorCode,
		upd.StartedAt,
		upd.CompletedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FindStaleGeneratingVideo lists jobs stuck waiting on a video webhook since
// before the cutoff.
func (r *JobRepositoryPG) FindStaleGeneratingVideo(ctx context.Context, olderThan time.Time) ([]domain.GenerationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE status = 'GENERATING_VIDEO' AND updated_at < $1;`
	rows, err := r.pool.Query(ctx, query, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.GenerationJob
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (r *JobRepositoryPG) scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	var projectID, providerJobID, imageAssetID, videoAssetID, prePause, errMsg, errCode *string
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&projectID,
		&job.Kind,
		&job.Status,
		&job.Prompt,
		&job.ImagePrompt,
		&job.VideoPrompt,
		&job.Provider,
		&providerJobID,
		&job.Cost,
		&imageAssetID,
		&videoAssetID,
		&prePause,
		&errMsg,
		&errCode,
		&job.ProviderMetadata,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.ProjectID = deref(projectID)
	job.ProviderJobID = deref(providerJobID)
	job.ImageAssetID = deref(imageAssetID)
	job.VideoAssetID = deref(videoAssetID)
	job.PrePauseStatus = domain.JobStatus(deref(prePause))
	job.ErrorMessage = deref(errMsg)
	job.ErrorCode = deref(errCode)
	return &job, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
