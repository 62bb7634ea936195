/**
 * @description
 * This file implements the allocation algorithm over a customer's usable
 * grants, and the ordering comparators that decide which grant a spend debits
 * first and which allocation a cancellation restores first. The comparators
 * are the single source of truth for these policies; storage implementations
 * must return rows in the same order (the SQL ORDER BY mirrors them).
 *
 * Spend ordering policy: manually-granted points are consumed before
 * system/restore points, and among equal priority the grant closest to expiry
 * goes first, so the least value is forfeited to expiry. Ties break on
 * creation time.
 */

package domain

import (
	"sort"
	"time"
)

// UsableGrants is a transient aggregate over a customer's eligible grants for
// one spend operation. The grant slice must already be in spend order (see
// SortGrantsForSpend); stores return it pre-sorted under lock.
type UsableGrants struct {
	grants []Grant
}

// NewUsableGrants wraps an ordered list of active, unexpired grants with a
// positive available amount.
func NewUsableGrants(grants []Grant) *UsableGrants {
	return &UsableGrants{grants: grants}
}

// Grants exposes the underlying grants, including any debits applied by
// Deduct. The caller persists the touched ones.
func (u *UsableGrants) Grants() []Grant {
	return u.grants
}

// TotalAvailable sums the available amount across the set.
func (u *UsableGrants) TotalAvailable() int64 {
	var total int64
	for _, g := range u.grants {
		total += g.AmountAvailable
	}
	return total
}

// ValidateSufficientBalance fails with ErrInsufficientBalance when the set
// cannot cover the required amount.
func (u *UsableGrants) ValidateSufficientBalance(requiredAmount int64) error {
	if u.TotalAvailable() < requiredAmount {
		return ErrInsufficientBalance
	}
	return nil
}

// Deduct walks the ordered grants, debiting each until the full amount is
// allocated, and returns one allocation per grant actually touched. Grants
// that contribute nothing are skipped. The debits are applied to the grants
// held by this set, so Deduct must run exactly once per spend;
// ValidateSufficientBalance is a pre-condition and is not re-checked here.
func (u *UsableGrants) Deduct(amount int64, now time.Time) []Allocation {
	allocations := make([]Allocation, 0, len(u.grants))
	remaining := amount

	for i, grant := range u.grants {
		if remaining <= 0 {
			break
		}
		debitedGrant, debited := grant.Debit(remaining)
		if debited == 0 {
			continue
		}
		u.grants[i] = debitedGrant
		allocations = append(allocations, NewAllocation(grant.ID, debited, now))
		remaining -= debited
	}

	return allocations
}

// grantSpendPriority orders manual grants ahead of system/restore grants.
func grantSpendPriority(t GrantType) int {
	if t == GrantTypeManual {
		return 0
	}
	return 1
}

// CompareGrantsForSpend reports the spend-time debit order of two grants:
// manual priority, then ascending expiry, then ascending creation time.
func CompareGrantsForSpend(a, b Grant) int {
	if pa, pb := grantSpendPriority(a.Type), grantSpendPriority(b.Type); pa != pb {
		return pa - pb
	}
	if !a.ExpiresAt.Equal(b.ExpiresAt) {
		if a.ExpiresAt.Before(b.ExpiresAt) {
			return -1
		}
		return 1
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	}
	return 0
}

// SortGrantsForSpend sorts grants in place into spend order.
func SortGrantsForSpend(grants []Grant) {
	sort.SliceStable(grants, func(i, j int) bool {
		return CompareGrantsForSpend(grants[i], grants[j]) < 0
	})
}

// RestorationCandidate pairs an allocation with its grant during
// spend-cancellation, so the restoration walk can decide between crediting
// the original grant and minting a replacement.
type RestorationCandidate struct {
	Allocation Allocation
	Grant      Grant
}

// CompareRestorationCandidates reports the restoration order of two
// candidates at `now`: allocations whose grant is still active and unexpired
// come first, then ascending grant expiry, then ascending allocation creation
// time. Restoring into still-usable grants first maximizes the amount that
// goes back onto original grants instead of freshly minted ones.
func CompareRestorationCandidates(a, b RestorationCandidate, now time.Time) int {
	aUsable := a.Grant.IsActive() && !a.Grant.IsExpired(now)
	bUsable := b.Grant.IsActive() && !b.Grant.IsExpired(now)
	if aUsable != bUsable {
		if aUsable {
			return -1
		}
		return 1
	}
	if !a.Grant.ExpiresAt.Equal(b.Grant.ExpiresAt) {
		if a.Grant.ExpiresAt.Before(b.Grant.ExpiresAt) {
			return -1
		}
		return 1
	}
	if !a.Allocation.CreatedAt.Equal(b.Allocation.CreatedAt) {
		if a.Allocation.CreatedAt.Before(b.Allocation.CreatedAt) {
			return -1
		}
		return 1
	}
	return 0
}

// SortRestorationCandidates sorts candidates in place into restoration order.
func SortRestorationCandidates(candidates []RestorationCandidate, now time.Time) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return CompareRestorationCandidates(candidates[i], candidates[j], now) < 0
	})
}
