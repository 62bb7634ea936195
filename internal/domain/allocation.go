/**
 * @description
 * This file defines the Allocation domain model: the attribution of part of a
 * spend to one specific grant. Allocations are created in a batch at spend
 * time and their canceled amount only ever grows during spend-cancellation.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Allocation records how much of a spend was drawn from one grant. This
// struct maps directly to the `point_spend_allocation` table.
type Allocation struct {
	ID             uuid.UUID `json:"id"`
	SpendID        uuid.UUID `json:"spend_id"`
	GrantID        uuid.UUID `json:"grant_id"`
	AmountUsed     int64     `json:"amount_used"`
	AmountCanceled int64     `json:"amount_canceled"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewAllocation creates an allocation against a grant. The spend id is set
// when the allocation batch is attached to its spend.
func NewAllocation(grantID uuid.UUID, amountUsed int64, now time.Time) Allocation {
	return Allocation{
		ID:             uuid.New(),
		GrantID:        grantID,
		AmountUsed:     amountUsed,
		AmountCanceled: 0,
		CreatedAt:      now,
	}
}

// RemainingCancelable is how much of this allocation can still be unwound.
func (a Allocation) RemainingCancelable() int64 {
	return a.AmountUsed - a.AmountCanceled
}

// CancelUpTo cancels at most `amount` from this allocation, bounded by what
// remains cancelable, and returns the updated allocation together with the
// amount actually canceled.
func (a Allocation) CancelUpTo(amount int64) (Allocation, int64) {
	toCancel := a.RemainingCancelable()
	if amount < toCancel {
		toCancel = amount
	}
	a.AmountCanceled += toCancel
	return a, toCancel
}
