package domain

import (
	"context"
	"time"
)

// JobUpdate carries the fields written together with a conditional status
// transition. Nil pointers leave the stored value untouched.
type JobUpdate struct {
	ProviderJobID  *string
	ImageAssetID   *string
	VideoAssetID   *string
	ImagePrompt    *string
	VideoPrompt    *string
	PrePauseStatus *JobStatus
	ErrorMessage   *string
	ErrorCode      *string
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// JobRepository persists generation jobs. TransitionStatus is the
// compare-and-set primitive the whole concurrency design rests on: the write
// succeeds only when the job's current status is in the expected set, so
// racing writers (webhook delivery vs. user cancel) cannot both apply.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob) error
	GetByID(ctx context.Context, jobID string) (*GenerationJob, error)
	GetForUser(ctx context.Context, jobID, userID string) (*GenerationJob, error)
	GetByProviderJobID(ctx context.Context, providerJobID string) (*GenerationJob, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]GenerationJob, error)
	// TransitionStatus atomically moves the job from any status in `from` to
	// `to`, applying upd in the same write. It returns false when the job was
	// not in an expected status (the caller lost the race or the transition is
	// illegal) without treating that as an error.
	TransitionStatus(ctx context.Context, jobID string, from []JobStatus, to JobStatus, upd JobUpdate) (bool, error)
	FindStaleGeneratingVideo(ctx context.Context, olderThan time.Time) ([]GenerationJob, error)
}

// CreditRepository persists balances and ledger entries. ReserveAndCharge and
// Refund must keep the balance column and the appended entry in one
// transaction.
type CreditRepository interface {
	Balance(ctx context.Context, userID string) (int, error)
	// ReserveAndCharge decrements the balance by cost only if the balance is
	// at least cost, appending the reservation entry in the same transaction.
	// Returns ErrInsufficientCredits otherwise.
	ReserveAndCharge(ctx context.Context, entry *CreditLedgerEntry) error
	// Refund increments the balance and appends the refund entry in one
	// transaction.
	Refund(ctx context.Context, entry *CreditLedgerEntry) error
	// SetBalance overwrites the balance, appending an entry for the delta.
	SetBalance(ctx context.Context, userID string, newBalance int, entry *CreditLedgerEntry) error
	Entries(ctx context.Context, userID string, limit int) ([]CreditLedgerEntry, error)
}

// WebhookRepository appends inbound callback records. Records are immutable.
type WebhookRepository interface {
	Create(ctx context.Context, rec *WebhookRecord) error
	ListByProviderJobID(ctx context.Context, providerJobID string, limit int) ([]WebhookRecord, error)
}

// AssetRepository persists generated assets.
type AssetRepository interface {
	Create(ctx context.Context, asset *Asset) error
	GetByID(ctx context.Context, assetID string) (*Asset, error)
	ListByJobID(ctx context.Context, jobID string) ([]Asset, error)
}

// UserRepository provides the user reads the workflow needs.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*User, error)
}
