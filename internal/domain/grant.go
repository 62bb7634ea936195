/**
 * @description
 * This file defines the Grant domain model: a single issuance of points to a
 * customer with its own expiry and remaining balance. Grants are expressed as
 * value types; every mutation is an explicit state-transition method that takes
 * the current value and returns the updated one, so the mutation points inside
 * a locked operation are visible at the call site.
 *
 * @notes
 * - Amounts are `int64` in the smallest point unit to avoid floating-point
 *   inaccuracies with financial data.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// GrantType distinguishes how a grant was issued.
type GrantType string

const (
	GrantTypeManual  GrantType = "manual"  // issued by an operator
	GrantTypeSystem  GrantType = "system"  // issued automatically
	GrantTypeRestore GrantType = "restore" // minted to compensate a spend cancellation
)

// GrantStatus is the lifecycle state of a grant. The only transition is
// active -> canceled, one-way.
type GrantStatus string

const (
	GrantStatusActive   GrantStatus = "active"
	GrantStatusCanceled GrantStatus = "canceled"
)

// Grant represents one issuance of points to a customer. This struct maps
// directly to the `point_grant` table.
type Grant struct {
	ID              uuid.UUID   `json:"id"`
	CustomerID      string      `json:"customer_id"`
	Type            GrantType   `json:"type"`
	AmountTotal     int64       `json:"amount_total"`
	AmountAvailable int64       `json:"amount_available"`
	ExpiresAt       time.Time   `json:"expires_at"`
	Status          GrantStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
}

// NewGrant creates an active grant with the full amount available.
func NewGrant(customerID string, grantType GrantType, amount int64, expiresAt, now time.Time) Grant {
	return Grant{
		ID:              uuid.New(),
		CustomerID:      customerID,
		Type:            grantType,
		AmountTotal:     amount,
		AmountAvailable: amount,
		ExpiresAt:       expiresAt,
		Status:          GrantStatusActive,
		CreatedAt:       now,
	}
}

// IsActive reports whether the grant has not been canceled.
func (g Grant) IsActive() bool {
	return g.Status == GrantStatusActive
}

// IsExpired reports whether the grant's expiry has passed. A grant expiring
// exactly at `now` counts as expired.
func (g Grant) IsExpired(now time.Time) bool {
	return !g.ExpiresAt.After(now)
}

// IsUsable reports whether the grant is eligible for spend allocation:
// active, unexpired and carrying a positive available amount.
func (g Grant) IsUsable(now time.Time) bool {
	return g.IsActive() && !g.IsExpired(now) && g.AmountAvailable > 0
}

// IsCancelable reports whether the grant may still be canceled. Cancellation
// is only allowed while no amount has ever been debited.
func (g Grant) IsCancelable() bool {
	return g.IsActive() && g.AmountAvailable == g.AmountTotal
}

// Cancel transitions the grant to canceled and zeroes its available amount.
// Callers must check IsCancelable first.
func (g Grant) Cancel() Grant {
	g.Status = GrantStatusCanceled
	g.AmountAvailable = 0
	return g
}

// Debit removes up to `amount` from the available balance and returns the
// updated grant together with the amount actually debited.
func (g Grant) Debit(amount int64) (Grant, int64) {
	debited := amount
	if g.AmountAvailable < debited {
		debited = g.AmountAvailable
	}
	g.AmountAvailable -= debited
	return g, debited
}

// Credit returns points to the available balance during spend-cancellation
// restoration. The credited amount never exceeds what was previously debited
// from this grant, so AmountAvailable stays within AmountTotal.
func (g Grant) Credit(amount int64) Grant {
	g.AmountAvailable += amount
	return g
}
