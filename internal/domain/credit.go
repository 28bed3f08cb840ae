package domain

import "time"

// LedgerEntryType enumerates the kinds of balance changes recorded in the ledger.
type LedgerEntryType string

const (
	LedgerEntryReservation  LedgerEntryType = "reservation"
	LedgerEntryGeneration   LedgerEntryType = "generation"
	LedgerEntryRefund       LedgerEntryType = "refund"
	LedgerEntryMonthlyReset LedgerEntryType = "monthly_reset"
)

// CreditLedgerEntry is one append-only record of a balance change. Amounts are
// signed minor currency units: charges are negative, refunds positive. The
// user's credit_balance column is a denormalized running total; the ledger is
// the source of truth for audits.
type CreditLedgerEntry struct {
	ID          string
	UserID      string
	Amount      int
	Type        LedgerEntryType
	Description string
	JobID       string
	CreatedAt   time.Time
}

// Balance is the result of a read-only balance check.
type Balance struct {
	Sufficient bool `json:"sufficient"`
	Balance    int  `json:"balance"`
}
