package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pointsystem/point-service/internal/domain"
	"github.com/pointsystem/point-service/internal/store"
)

// stubRepository is an in-memory store.Repository. InTx serializes callers
// on one mutex, snapshots the state up front and restores it when the
// closure fails, which mirrors the lock-then-commit-or-rollback behavior of
// the real repository closely enough for service tests.
type stubRepository struct {
	mu          sync.Mutex
	grants      map[uuid.UUID]domain.Grant
	spends      map[uuid.UUID]domain.Spend
	allocations map[uuid.UUID]domain.Allocation
	ledger      []domain.LedgerEntry
	policies    map[string]string
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		grants:      make(map[uuid.UUID]domain.Grant),
		spends:      make(map[uuid.UUID]domain.Spend),
		allocations: make(map[uuid.UUID]domain.Allocation),
		policies:    make(map[string]string),
	}
}

func (r *stubRepository) snapshot() *stubRepository {
	clone := newStubRepository()
	for k, v := range r.grants {
		clone.grants[k] = v
	}
	for k, v := range r.spends {
		spend := v
		spend.Allocations = append([]domain.Allocation(nil), v.Allocations...)
		clone.spends[k] = spend
	}
	for k, v := range r.allocations {
		clone.allocations[k] = v
	}
	clone.ledger = append([]domain.LedgerEntry(nil), r.ledger...)
	for k, v := range r.policies {
		clone.policies[k] = v
	}
	return clone
}

func (r *stubRepository) restore(from *stubRepository) {
	r.grants = from.grants
	r.spends = from.spends
	r.allocations = from.allocations
	r.ledger = from.ledger
	r.policies = from.policies
}

func (r *stubRepository) InTx(ctx context.Context, fn func(tx store.Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.snapshot()
	err := fn(r)
	if err != nil {
		r.restore(before)
	}
	return err
}

func (r *stubRepository) CreateGrant(ctx context.Context, grant domain.Grant) error {
	r.grants[grant.ID] = grant
	return nil
}

func (r *stubRepository) UpdateGrant(ctx context.Context, grant domain.Grant) error {
	if _, ok := r.grants[grant.ID]; !ok {
		return store.ErrGrantNotFound
	}
	r.grants[grant.ID] = grant
	return nil
}

func (r *stubRepository) FindGrantForUpdate(ctx context.Context, grantID uuid.UUID) (domain.Grant, error) {
	grant, ok := r.grants[grantID]
	if !ok {
		return domain.Grant{}, store.ErrGrantNotFound
	}
	return grant, nil
}

func (r *stubRepository) SumAvailableBalance(ctx context.Context, customerID string, now time.Time) (int64, error) {
	var total int64
	for _, g := range r.grants {
		if g.CustomerID == customerID && g.IsUsable(now) {
			total += g.AmountAvailable
		}
	}
	return total, nil
}

func (r *stubRepository) FindUsableGrantsForUpdate(ctx context.Context, customerID string, now time.Time) ([]domain.Grant, error) {
	var grants []domain.Grant
	for _, g := range r.grants {
		if g.CustomerID == customerID && g.IsUsable(now) {
			grants = append(grants, g)
		}
	}
	domain.SortGrantsForSpend(grants)
	return grants, nil
}

func (r *stubRepository) ExistsSpend(ctx context.Context, customerID, orderID string) (bool, error) {
	for _, s := range r.spends {
		if s.CustomerID == customerID && s.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubRepository) CreateSpend(ctx context.Context, spend domain.Spend) error {
	for _, s := range r.spends {
		if s.CustomerID == spend.CustomerID && s.OrderID == spend.OrderID {
			return domain.ErrDuplicateOrder
		}
	}
	r.spends[spend.ID] = spend
	for _, a := range spend.Allocations {
		r.allocations[a.ID] = a
	}
	return nil
}

func (r *stubRepository) UpdateSpend(ctx context.Context, spend domain.Spend) error {
	if _, ok := r.spends[spend.ID]; !ok {
		return store.ErrSpendNotFound
	}
	r.spends[spend.ID] = spend
	return nil
}

func (r *stubRepository) FindSpendForUpdate(ctx context.Context, spendID uuid.UUID) (domain.Spend, error) {
	spend, ok := r.spends[spendID]
	if !ok {
		return domain.Spend{}, store.ErrSpendNotFound
	}
	spend.Allocations = nil
	for _, a := range r.allocations {
		if a.SpendID == spendID {
			spend.Allocations = append(spend.Allocations, a)
		}
	}
	return spend, nil
}

func (r *stubRepository) UpdateAllocation(ctx context.Context, allocation domain.Allocation) error {
	r.allocations[allocation.ID] = allocation
	return nil
}

func (r *stubRepository) FindAllocationsForCancel(ctx context.Context, spendID uuid.UUID, now time.Time) ([]domain.RestorationCandidate, error) {
	var candidates []domain.RestorationCandidate
	for _, a := range r.allocations {
		if a.SpendID != spendID {
			continue
		}
		grant, ok := r.grants[a.GrantID]
		if !ok {
			return nil, store.ErrGrantNotFound
		}
		candidates = append(candidates, domain.RestorationCandidate{Allocation: a, Grant: grant})
	}
	domain.SortRestorationCandidates(candidates, now)
	return candidates, nil
}

func (r *stubRepository) CreateLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error {
	r.ledger = append(r.ledger, entry)
	return nil
}

func (r *stubRepository) ListLedgerEntries(ctx context.Context, customerID string) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for i := len(r.ledger) - 1; i >= 0; i-- {
		if r.ledger[i].CustomerID == customerID {
			entries = append(entries, r.ledger[i])
		}
	}
	return entries, nil
}

func (r *stubRepository) FindPolicyValue(ctx context.Context, key string) (string, error) {
	value, ok := r.policies[key]
	if !ok {
		return "", store.ErrPolicyNotFound
	}
	return value, nil
}
