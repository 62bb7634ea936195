package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pointsystem/point-service/internal/domain"
	"github.com/pointsystem/point-service/internal/store"
)

func TestSpendPointsAllocatesAcrossGrants(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubRepository()
	svc := newTestService(repo, now)

	manualExpiry := now.Add(72 * time.Hour)
	systemExpiry := now.Add(24 * time.Hour)
	manual, err := svc.GrantPoints(context.Background(), "cust-1", 1000, domain.GrantTypeManual, &manualExpiry)
	if err != nil {
		t.Fatalf("manual grant failed: %v", err)
	}
	system, err := svc.GrantPoints(context.Background(), "cust-1", 500, domain.GrantTypeSystem, &systemExpiry)
	if err != nil {
		t.Fatalf("system grant failed: %v", err)
	}

	spend, err := svc.SpendPoints(context.Background(), "cust-1", "order-1", 1200)
	if err != nil {
		t.Fatalf("SpendPoints returned error: %v", err)
	}

	// The manual grant is drained first despite its later expiry.
	if len(spend.Allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(spend.Allocations))
	}
	if spend.Allocations[0].GrantID != manual.ID || spend.Allocations[0].AmountUsed != 1000 {
		t.Fatalf("expected 1000 from the manual grant first, got %s/%d",
			spend.Allocations[0].GrantID, spend.Allocations[0].AmountUsed)
	}
	if spend.Allocations[1].GrantID != system.ID || spend.Allocations[1].AmountUsed != 200 {
		t.Fatalf("expected 200 from the system grant, got %s/%d",
			spend.Allocations[1].GrantID, spend.Allocations[1].AmountUsed)
	}

	if repo.grants[manual.ID].AmountAvailable != 0 {
		t.Fatalf("expected manual grant drained, got %d", repo.grants[manual.ID].AmountAvailable)
	}
	if repo.grants[system.ID].AmountAvailable != 300 {
		t.Fatalf("expected 300 left on the system grant, got %d", repo.grants[system.ID].AmountAvailable)
	}
}

func TestSpendPointsInsufficientBalance(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubRepository()
	svc := newTestService(repo, now)

	if _, err := svc.GrantPoints(context.Background(), "cust-1", 100, domain.GrantTypeManual, nil); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	_, err := svc.SpendPoints(context.Background(), "cust-1", "order-1", 101)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// The failed spend must leave no residue.
	balance, _ := repo.SumAvailableBalance(context.Background(), "cust-1", now)
	if balance != 100 {
		t.Fatalf("expected balance untouched at 100, got %d", balance)
	}
	if len(repo.spends) != 0 {
		t.Fatalf("expected no spend rows after a failed spend, got %d", len(repo.spends))
	}
}

func TestSpendPointsIgnoresExpiredAndCanceledGrants(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubRepository()
	svc := newTestService(repo, now)

	expired := domain.NewGrant("cust-1", domain.GrantTypeManual, 1000, now.Add(-time.Hour), now.Add(-48*time.Hour))
	repo.grants[expired.ID] = expired
	canceled := domain.NewGrant("cust-1", domain.GrantTypeManual, 1000, now.Add(time.Hour), now).Cancel()
	repo.grants[canceled.ID] = canceled

	_, err := svc.SpendPoints(context.Background(), "cust-1", "order-1", 1)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected dead grants to not fund a spend, got %v", err)
	}
}

func TestSpendPointsDuplicateOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubRepository()
	svc := newTestService(repo, now)

	if _, err := svc.GrantPoints(context.Background(), "cust-1", 1000, domain.GrantTypeManual, nil); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if _, err := svc.SpendPoints(context.Background(), "cust-1", "order-1", 100); err != nil {
		t.Fatalf("first spend failed: %v", err)
	}

	_, err := svc.SpendPoints(context.Background(), "cust-1", "order-1", 100)
	if !errors.Is(err, domain.ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}

	// The same order id under a different customer is a separate spend.
	if _, err := svc.GrantPoints(context.Background(), "cust-2", 1000, domain.GrantTypeManual, nil); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if _, err := svc.SpendPoints(context.Background(), "cust-2", "order-1", 100); err != nil {
		t.Fatalf("expected other customer's spend to pass, got %v", err)
	}
}

func TestCancelSpendRestoresToOriginalGrant(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubRepository()
	svc := newTestService(repo, now)

	grant, err := svc.GrantPoints(context.Background(), "cust-1", 1000, domain.GrantTypeManual, nil)
	if err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	spend, err := svc.SpendPoints(context.Background(), "cust-1", "order-1", 600)
	if err != nil {
		t.Fatalf("spend failed: %v", err)
	}

	result, err := svc.CancelSpend(context.Background(), spend.ID, 600)
	if err != nil {
		t.Fatalf("CancelSpend returned error: %v", err)
	}
	if result.CanceledAmount != 600 || result.RestoredToOriginalGrants != 600 || result.RestoredAsNewGrants != 0 {
		t.Fatalf("expected full restore onto the original grant, got canceled=%d original=%d new=%d",
			result.CanceledAmount, result.RestoredToOriginalGrants, result.RestoredAsNewGrants)
	}
	if result.Spend.Status != domain.SpendStatusCanceled {
		t.Fatalf("expected spend canceled, got %s", result.Spend.Status)
	}
	if repo.grants[grant.ID].AmountAvailable != 1000 {
		t.Fatalf("expected grant back at 1000, got %d", repo.grants[grant.ID].AmountAvailable)
	}
}

func TestCancelSpendReissuesWhenGrantExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubRepository()
	svc := newTestService(repo, now)

	expiry := now.Add(24 * time.Hour)
	if _, err := svc.GrantPoints(context.Background(), "cust-1", 1000, domain.GrantTypeManual, &expiry); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	spend, err := svc.SpendPoints(context.Background(), "cust-1", "order-1", 500)
	if err != nil {
		t.Fatalf("spend failed: %v", err)
	}

	// The grant expires before the cancellation happens.
	later := now.Add(48 * time.Hour)
	svc.now = func() time.Time { return later }

	result, err := svc.CancelSpend(context.Background(), spend.ID, 500)
	if err != nil {
		t.Fatalf("CancelSpend returned error: %v", err)
	}
	if result.RestoredToOriginalGrants != 0 || result.RestoredAsNewGrants != 500 {
		t.Fatalf("expected full re-issue, got original=%d new=%d",
			result.RestoredToOriginalGrants, result.RestoredAsNewGrants)
	}
	if len(result.NewRestoreGrants) != 1 {
		t.Fatalf("expected 1 restore grant, got %d", len(result.NewRestoreGrants))
	}
	restore := result.NewRestoreGrants[0]
	if restore.Type != domain.GrantTypeRestore || restore.AmountAvailable != 500 {
		t.Fatalf("expected restore grant of 500, got type=%s amount=%d", restore.Type, restore.AmountAvailable)
	}
	if !restore.ExpiresAt.Equal(later.Add(365 * 24 * time.Hour)) {
		t.Fatalf("expected restore grant expiry a default window from cancellation time, got %v", restore.ExpiresAt)
	}

	balance, _ := repo.SumAvailableBalance(context.Background(), "cust-1", later)
	if balance != 500 {
		t.Fatalf("expected 500 usable after re-issue, got %d", balance)
	}
}

func TestCancelSpendMixedRestoration(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubRepository()
	svc := newTestService(repo, now)

	// Two system grants; the sooner one expires before cancellation.
	shortExpiry := now.Add(24 * time.Hour)
	longExpiry := now.Add(30 * 24 * time.Hour)
	if _, err := svc.GrantPoints(context.Background(), "cust-1", 300, domain.GrantTypeSystem, &shortExpiry); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	longGrant, err := svc.GrantPoints(context.Background(), "cust-1", 400, domain.GrantTypeSystem, &longExpiry)
	if err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	spend, err := svc.SpendPoints(context.Background(), "cust-1", "order-1", 500)
	if err != nil {
		t.Fatalf("spend failed: %v", err)
	}

	later := now.Add(48 * time.Hour)
	svc.now = func() time.Time { return later }

	result, err := svc.CancelSpend(context.Background(), spend.ID, 500)
	if err != nil {
		t.Fatalf("CancelSpend returned error: %v", err)
	}

	// 200 of the spend came from the still-usable long grant and goes back
	// onto it; the 300 from the expired grant is re-issued.
	if result.RestoredToOriginalGrants != 200 {
		t.Fatalf("expected 200 restored to original grants, got %d", result.RestoredToOriginalGrants)
	}
	if result.RestoredAsNewGrants != 300 {
		t.Fatalf("expected 300 re-issued, got %d", result.RestoredAsNewGrants)
	}
	if repo.grants[longGrant.ID].AmountAvailable != 400 {
		t.Fatalf("expected long grant back at 400, got %d", repo.grants[longGrant.ID].AmountAvailable)
	}
}

func TestCancelSpendPartialThenFull(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubRepository()
	svc := newTestService(repo, now)

	if _, err := svc.GrantPoints(context.Background(), "cust-1", 1000, domain.GrantTypeManual, nil); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	spend, err := svc.SpendPoints(context.Background(), "cust-1", "order-1", 600)
	if err != nil {
		t.Fatalf("spend failed: %v", err)
	}

	partial, err := svc.CancelSpend(context.Background(), spend.ID, 200)
	if err != nil {
		t.Fatalf("partial cancel failed: %v", err)
	}
	if partial.Spend.Status != domain.SpendStatusPartiallyCanceled {
		t.Fatalf("expected partially_canceled, got %s", partial.Spend.Status)
	}

	// Canceling beyond what remains is invalid.
	if _, err := svc.CancelSpend(context.Background(), spend.ID, 401); !errors.Is(err, domain.ErrCancelAmountInvalid) {
		t.Fatalf("expected ErrCancelAmountInvalid, got %v", err)
	}

	full, err := svc.CancelSpend(context.Background(), spend.ID, 400)
	if err != nil {
		t.Fatalf("final cancel failed: %v", err)
	}
	if full.Spend.Status != domain.SpendStatusCanceled {
		t.Fatalf("expected canceled, got %s", full.Spend.Status)
	}

	// The spend's canceled amount equals the sum across its allocations.
	var allocCanceled int64
	for _, a := range full.Spend.Allocations {
		allocCanceled += a.AmountCanceled
	}
	if allocCanceled != full.Spend.AmountCanceled {
		t.Fatalf("expected allocation cancels to sum to %d, got %d", full.Spend.AmountCanceled, allocCanceled)
	}

	// A canceled spend cannot be canceled again.
	if _, err := svc.CancelSpend(context.Background(), spend.ID, 1); !errors.Is(err, domain.ErrSpendAlreadyCanceled) {
		t.Fatalf("expected ErrSpendAlreadyCanceled, got %v", err)
	}

	balance, _ := repo.SumAvailableBalance(context.Background(), "cust-1", now)
	if balance != 1000 {
		t.Fatalf("expected full balance restored, got %d", balance)
	}
}

func TestCancelSpendAmountValidation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubRepository()
	svc := newTestService(repo, now)

	if _, err := svc.GrantPoints(context.Background(), "cust-1", 1000, domain.GrantTypeManual, nil); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	spend, err := svc.SpendPoints(context.Background(), "cust-1", "order-1", 600)
	if err != nil {
		t.Fatalf("spend failed: %v", err)
	}

	for _, amount := range []int64{0, -5, 601} {
		if _, err := svc.CancelSpend(context.Background(), spend.ID, amount); !errors.Is(err, domain.ErrCancelAmountInvalid) {
			t.Fatalf("amount %d: expected ErrCancelAmountInvalid, got %v", amount, err)
		}
	}
}

func TestCancelSpendNotFound(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(newStubRepository(), now)

	_, err := svc.CancelSpend(context.Background(), uuid.New(), 100)
	if !errors.Is(err, store.ErrSpendNotFound) {
		t.Fatalf("expected ErrSpendNotFound, got %v", err)
	}
}

func TestConcurrentSpendsOnlyOneSucceeds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubRepository()
	svc := newTestService(repo, now)

	if _, err := svc.GrantPoints(context.Background(), "cust-1", 1000, domain.GrantTypeManual, nil); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	// Two spends of 700 against a balance of 1000: exactly one can win.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.SpendPoints(context.Background(), "cust-1", "order-"+string(rune('a'+i)), 700)
		}(i)
	}
	wg.Wait()

	var successes, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || insufficient != 1 {
		t.Fatalf("expected one success and one insufficient-balance failure, got %d/%d", successes, insufficient)
	}

	balance, _ := repo.SumAvailableBalance(context.Background(), "cust-1", now)
	if balance != 300 {
		t.Fatalf("expected 300 left, got %d", balance)
	}
}
