package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediagen/internal/domain"
)

// AssetRepositoryPG implements domain.AssetRepository.
type AssetRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAssetRepository creates an asset repository backed by PostgreSQL.
func NewAssetRepository(pool *pgxpool.Pool) *AssetRepositoryPG {
	return &AssetRepositoryPG{pool: pool}
}

// Create inserts a generated asset.
func (r *AssetRepositoryPG) Create(ctx context.Context, asset *domain.Asset) error {
	return r.pool.QueryRow(ctx, `
INSERT INTO assets (id, user_id, job_id, kind, url, mime, bytes, width, height, provider)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at;
`,
		asset.ID,
		asset.UserID,
		asset.JobID,
		asset.Kind,
		asset.URL,
		asset.Mime,
		asset.Bytes,
		asset.Width,
		asset.Height,
		asset.Provider,
	).Scan(&asset.CreatedAt)
}

// GetByID fetches an asset.
func (r *AssetRepositoryPG) GetByID(ctx context.Context, assetID string) (*domain.Asset, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, job_id, kind, url, mime, bytes, width, height, provider, created_at
FROM assets WHERE id = $1;
`, assetID)
	return scanAsset(row)
}

// ListByJobID returns the assets produced by a job.
func (r *AssetRepositoryPG) ListByJobID(ctx context.Context, jobID string) ([]domain.Asset, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, job_id, kind, url, mime, bytes, width, height, provider, created_at
FROM assets WHERE job_id = $1 ORDER BY created_at ASC;
`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assets []domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

func scanAsset(row pgx.Row) (*domain.Asset, error) {
	var a domain.Asset
	if err := row.Scan(&a.ID, &a.UserID, &a.JobID, &a.Kind, &a.URL, &a.Mime, &a.Bytes, &a.Width, &a.Height, &a.Provider, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

var _ domain.AssetRepository = (*AssetRepositoryPG)(nil)
