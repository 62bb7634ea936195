/**
 * @description
 * This file defines the Spend domain model: one customer transaction consuming
 * points, attributed across one or more grants via allocations. A spend is
 * uniquely keyed by (customer_id, order_id) for idempotency.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// SpendStatus is derived from AmountCanceled and never reverts:
// used -> partially_canceled -> canceled, or used -> canceled directly.
type SpendStatus string

const (
	SpendStatusUsed              SpendStatus = "used"
	SpendStatusPartiallyCanceled SpendStatus = "partially_canceled"
	SpendStatusCanceled          SpendStatus = "canceled"
)

// Spend represents one point-consuming transaction. This struct maps directly
// to the `point_spend` table; Allocations are kept in creation order.
type Spend struct {
	ID             uuid.UUID    `json:"id"`
	CustomerID     string       `json:"customer_id"`
	OrderID        string       `json:"order_id"`
	AmountTotal    int64        `json:"amount_total"`
	AmountCanceled int64        `json:"amount_canceled"`
	Status         SpendStatus  `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	Allocations    []Allocation `json:"allocations"`
}

// NewSpend creates a spend in status used with nothing canceled yet.
func NewSpend(customerID, orderID string, amountTotal int64, now time.Time) Spend {
	return Spend{
		ID:             uuid.New(),
		CustomerID:     customerID,
		OrderID:        orderID,
		AmountTotal:    amountTotal,
		AmountCanceled: 0,
		Status:         SpendStatusUsed,
		CreatedAt:      now,
	}
}

// AttachAllocations binds the allocations produced by the deduction walk to
// this spend, stamping each with the spend id.
func (s Spend) AttachAllocations(allocations []Allocation) Spend {
	attached := make([]Allocation, len(allocations))
	for i, a := range allocations {
		a.SpendID = s.ID
		attached[i] = a
	}
	s.Allocations = attached
	return s
}

// CancellableAmount is how much of the spend can still be canceled.
func (s Spend) CancellableAmount() int64 {
	return s.AmountTotal - s.AmountCanceled
}

// ApplyCancel increases the canceled amount and re-derives the status.
// AmountCanceled is monotonically non-decreasing; callers must validate the
// amount against CancellableAmount first.
func (s Spend) ApplyCancel(amount int64) Spend {
	s.AmountCanceled += amount
	switch {
	case s.AmountCanceled == 0:
		s.Status = SpendStatusUsed
	case s.AmountCanceled < s.AmountTotal:
		s.Status = SpendStatusPartiallyCanceled
	default:
		s.Status = SpendStatusCanceled
	}
	return s
}

// SpendCancelResult is the full breakdown of one cancellation: how much went
// back onto still-usable original grants versus how much had to be re-issued
// as freshly minted restore grants.
type SpendCancelResult struct {
	Spend                    Spend   `json:"spend"`
	CanceledAmount           int64   `json:"canceled_amount"`
	RestoredToOriginalGrants int64   `json:"restored_to_original_grants"`
	RestoredAsNewGrants      int64   `json:"restored_as_new_grants"`
	NewRestoreGrants         []Grant `json:"new_restore_grants"`
}
