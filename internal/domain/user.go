package domain

import "time"

// User is the owner of jobs, assets and ledger entries. Authentication lives
// with an external collaborator; this row only carries what the workflow needs.
type User struct {
	ID            string
	Email         string
	Plan          string
	CreditBalance int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
