package domain

import "time"

// AssetKind enumerates asset types.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// Asset represents a generated artifact owned by a user. Jobs hold a weak
// back-reference for display; asset lifecycle is independent of the job.
type Asset struct {
	ID        string
	UserID    string
	JobID     string
	Kind      AssetKind
	URL       string
	Mime      string
	Bytes     int64
	Width     int
	Height    int
	Provider  string
	CreatedAt time.Time
}
