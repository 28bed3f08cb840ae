package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediagen/internal/domain"
)

// Service is the credits ledger: atomic balance tracking with an append-only
// audit trail. Charge and refund idempotency is the caller's responsibility;
// the workflow orchestrator gates both behind conditional job transitions.
type Service struct {
	credits domain.CreditRepository
	logger  zerolog.Logger
}

// NewService constructs the ledger service.
func NewService(credits domain.CreditRepository, logger zerolog.Logger) *Service {
	return &Service{
		credits: credits,
		logger:  logger.With().Str("component", "ledger").Logger(),
	}
}

// CheckBalance reports whether the user's balance covers cost. Read-only.
func (s *Service) CheckBalance(ctx context.Context, userID string, cost int) (domain.Balance, error) {
	balance, err := s.credits.Balance(ctx, userID)
	if err != nil {
		return domain.Balance{}, err
	}
	return domain.Balance{Sufficient: balance >= cost, Balance: balance}, nil
}

// ReserveAndCharge decrements the user's balance by cost and appends a
// reservation entry, failing with ErrInsufficientCredits when the balance
// does not cover it. The decrement and the entry land in one transaction.
func (s *Service) ReserveAndCharge(ctx context.Context, userID string, cost int, description, jobID string) (*domain.CreditLedgerEntry, error) {
	if cost <= 0 {
		return nil, fmt.Errorf("ledger: cost must be positive, got %d", cost)
	}
	entry := &domain.CreditLedgerEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      -cost,
		Type:        domain.LedgerEntryReservation,
		Description: description,
		JobID:       jobID,
	}
	if err := s.credits.ReserveAndCharge(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("job_id", jobID).Int("amount", entry.Amount).Msg("credits charged")
	return entry, nil
}

// Refund increments the user's balance and appends a refund entry.
func (s *Service) Refund(ctx context.Context, userID string, amount int, description, jobID string) (*domain.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("ledger: refund amount must be positive, got %d", amount)
	}
	entry := &domain.CreditLedgerEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Type:        domain.LedgerEntryRefund,
		Description: description,
		JobID:       jobID,
	}
	if err := s.credits.Refund(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("job_id", jobID).Int("amount", amount).Msg("credits refunded")
	return entry, nil
}

// MonthlyReset sets the balance to a plan-defined value. Invoked by an
// external scheduled collaborator, not by the generation workflow.
func (s *Service) MonthlyReset(ctx context.Context, userID string, newBalance int) error {
	entry := &domain.CreditLedgerEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        domain.LedgerEntryMonthlyReset,
		Description: "monthly plan reset",
	}
	if err := s.credits.SetBalance(ctx, userID, newBalance, entry); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Int("balance", newBalance).Msg("monthly reset applied")
	return nil
}

// Entries returns the user's most recent ledger entries.
func (s *Service) Entries(ctx context.Context, userID string, limit int) ([]domain.CreditLedgerEntry, error) {
	return s.credits.Entries(ctx, userID, limit)
}
