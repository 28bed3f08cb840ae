package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediagen/internal/domain"
)

// fakeCreditRepo mimics the storage-level contract: decrement-if-sufficient
// and entry append behave atomically under the mutex, the way the SQL
// implementation behaves under its transaction.
type fakeCreditRepo struct {
	mu       sync.Mutex
	balances map[string]int
	entries  []domain.CreditLedgerEntry
}

func newFakeCreditRepo() *fakeCreditRepo {
	return &fakeCreditRepo{balances: make(map[string]int)}
}

func (f *fakeCreditRepo) Balance(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeCreditRepo) ReserveAndCharge(ctx context.Context, entry *domain.CreditLedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[entry.UserID]
	if !ok {
		return domain.ErrNotFound
	}
	if b < -entry.Amount {
		return domain.ErrInsufficientCredits
	}
	f.balances[entry.UserID] = b + entry.Amount
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeCreditRepo) Refund(ctx context.Context, entry *domain.CreditLedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[entry.UserID]; !ok {
		return domain.ErrNotFound
	}
	f.balances[entry.UserID] += entry.Amount
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeCreditRepo) SetBalance(ctx context.Context, userID string, newBalance int, entry *domain.CreditLedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, ok := f.balances[userID]
	if !ok {
		return domain.ErrNotFound
	}
	f.balances[userID] = newBalance
	entry.Amount = newBalance - prev
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeCreditRepo) Entries(ctx context.Context, userID string, limit int) ([]domain.CreditLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CreditLedgerEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].UserID == userID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func newTestService(repo *fakeCreditRepo) *Service {
	return NewService(repo, zerolog.Nop())
}

func TestCheckBalance(t *testing.T) {
	repo := newFakeCreditRepo()
	repo.balances["u1"] = 10
	svc := newTestService(repo)

	b, err := svc.CheckBalance(context.Background(), "u1", 5)
	require.NoError(t, err)
	assert.True(t, b.Sufficient)
	assert.Equal(t, 10, b.Balance)

	b, err = svc.CheckBalance(context.Background(), "u1", 11)
	require.NoError(t, err)
	assert.False(t, b.Sufficient)
}

func TestReserveAndChargeAppendsEntry(t *testing.T) {
	repo := newFakeCreditRepo()
	repo.balances["u1"] = 10
	svc := newTestService(repo)

	entry, err := svc.ReserveAndCharge(context.Background(), "u1", 5, "IMAGE_THEN_VIDEO generation", "job-1")
	require.NoError(t, err)
	assert.Equal(t, -5, entry.Amount)
	assert.Equal(t, domain.LedgerEntryReservation, entry.Type)
	assert.Equal(t, 5, repo.balances["u1"])
	require.Len(t, repo.entries, 1)
}

func TestReserveAndChargeInsufficient(t *testing.T) {
	repo := newFakeCreditRepo()
	repo.balances["u1"] = 3
	svc := newTestService(repo)

	_, err := svc.ReserveAndCharge(context.Background(), "u1", 5, "charge", "job-1")
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)
	assert.Equal(t, 3, repo.balances["u1"], "failed charge must not move the balance")
	assert.Empty(t, repo.entries)
}

func TestConcurrentChargeExactBalance(t *testing.T) {
	// Balance covers exactly one job. Two racing reservations: one wins, one
	// fails with insufficient credits, never both.
	repo := newFakeCreditRepo()
	repo.balances["u1"] = 5
	svc := newTestService(repo)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.ReserveAndCharge(context.Background(), "u1", 5, "charge", "")
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientCredits):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 0, repo.balances["u1"])
	assert.Len(t, repo.entries, 1)
}

func TestRefundIncrements(t *testing.T) {
	repo := newFakeCreditRepo()
	repo.balances["u1"] = 5
	svc := newTestService(repo)

	entry, err := svc.Refund(context.Background(), "u1", 5, "generation failed", "job-1")
	require.NoError(t, err)
	assert.Equal(t, 5, entry.Amount)
	assert.Equal(t, domain.LedgerEntryRefund, entry.Type)
	assert.Equal(t, 10, repo.balances["u1"])
}

func TestRefundRejectsNonPositive(t *testing.T) {
	svc := newTestService(newFakeCreditRepo())
	_, err := svc.Refund(context.Background(), "u1", 0, "bad", "")
	assert.Error(t, err)
}

func TestMonthlyResetRecordsDelta(t *testing.T) {
	repo := newFakeCreditRepo()
	repo.balances["u1"] = 3
	svc := newTestService(repo)

	require.NoError(t, svc.MonthlyReset(context.Background(), "u1", 100))
	assert.Equal(t, 100, repo.balances["u1"])
	require.Len(t, repo.entries, 1)
	assert.Equal(t, 97, repo.entries[0].Amount)
	assert.Equal(t, domain.LedgerEntryMonthlyReset, repo.entries[0].Type)
}
