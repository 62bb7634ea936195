/**
 * @description
 * This file defines the LedgerEntry domain model: the append-only audit trail
 * of every balance-affecting event. Entries are immutable; each mutating
 * operation writes exactly one entry as its last durable step.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEventType identifies which operation produced a ledger entry.
type LedgerEventType string

const (
	LedgerEventGrant        LedgerEventType = "grant"
	LedgerEventGrantCancel  LedgerEventType = "grant_cancel"
	LedgerEventSpend        LedgerEventType = "spend"
	LedgerEventSpendCancel  LedgerEventType = "spend_cancel"
	LedgerEventRestoreGrant LedgerEventType = "restore_grant"
)

// LedgerEntry is one immutable audit record. Amount is signed: positive for
// balance increases, negative for decreases. RefID points at the grant or
// spend that caused the event; OrderID is set only for spend-related events.
type LedgerEntry struct {
	ID         uuid.UUID       `json:"id"`
	CustomerID string          `json:"customer_id"`
	EventType  LedgerEventType `json:"event_type"`
	RefID      uuid.UUID       `json:"ref_id"`
	Amount     int64           `json:"amount"`
	OrderID    string          `json:"order_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewLedgerEntry creates an audit record. Pass an empty orderID for events
// that are not tied to an order.
func NewLedgerEntry(customerID string, eventType LedgerEventType, refID uuid.UUID, amount int64, orderID string, now time.Time) LedgerEntry {
	return LedgerEntry{
		ID:         uuid.New(),
		CustomerID: customerID,
		EventType:  eventType,
		RefID:      refID,
		Amount:     amount,
		OrderID:    orderID,
		CreatedAt:  now,
	}
}
