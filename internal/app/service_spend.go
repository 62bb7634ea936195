/**
 * @description
 * Spend engine: allocating a spend across a customer's usable grants and
 * unwinding a spend through partial or full cancellation. Both operations
 * lock every row they touch for the duration of one transaction.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/pointsystem/point-service/internal/domain"
	"github.com/pointsystem/point-service/internal/store"
	"github.com/pointsystem/point-service/pkg/rabbitmq"
)

// SpendPoints consumes points for an order, drawing from the customer's
// usable grants in spend order. A repeat of the same (customerID, orderID)
// fails with ErrDuplicateOrder; the unique index backs the pre-check so a
// concurrent race maps to the same error.
func (s *Service) SpendPoints(ctx context.Context, customerID, orderID string, amount int64) (*domain.Spend, error) {
	now := s.now()
	log.Printf("level=info component=app operation=spend customer_id=%s order_id=%s amount=%d", customerID, orderID, amount)

	if amount < 1 {
		return nil, domain.ErrAmountOutOfRange
	}

	var spend domain.Spend
	err := s.repo.InTx(ctx, func(tx store.Repository) error {
		exists, err := tx.ExistsSpend(ctx, customerID, orderID)
		if err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if exists {
			return domain.ErrDuplicateOrder
		}

		grants, err := tx.FindUsableGrantsForUpdate(ctx, customerID, now)
		if err != nil {
			return fmt.Errorf("find usable grants: %w", err)
		}

		usable := domain.NewUsableGrants(grants)
		if err := usable.ValidateSufficientBalance(amount); err != nil {
			return err
		}
		allocations := usable.Deduct(amount, now)

		touched := make(map[uuid.UUID]struct{}, len(allocations))
		for _, a := range allocations {
			touched[a.GrantID] = struct{}{}
		}
		for _, grant := range usable.Grants() {
			if _, ok := touched[grant.ID]; !ok {
				continue
			}
			if err := tx.UpdateGrant(ctx, grant); err != nil {
				return err
			}
		}

		spend = domain.NewSpend(customerID, orderID, amount, now).AttachAllocations(allocations)
		if err := tx.CreateSpend(ctx, spend); err != nil {
			return err
		}
		entry := domain.NewLedgerEntry(customerID, domain.LedgerEventSpend, spend.ID, -amount, orderID, now)
		return tx.CreateLedgerEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=app operation=spend outcome=success spend_id=%s customer_id=%s order_id=%s amount=%d grants=%d", spend.ID, customerID, orderID, amount, len(spend.Allocations))
	s.publishPointEvent(ctx, "point.spent", rabbitmq.PointEvent{
		CustomerID: customerID,
		EventType:  string(domain.LedgerEventSpend),
		RefID:      spend.ID,
		Amount:     -amount,
		OrderID:    orderID,
		Timestamp:  now,
	})
	return &spend, nil
}

// CancelSpend unwinds part or all of a spend. The canceled amount walks the
// spend's allocations in restoration order; each slice goes back onto its
// original grant when that grant is still active and unexpired, otherwise it
// is re-issued as a fresh restore grant with a new expiry.
func (s *Service) CancelSpend(ctx context.Context, spendID uuid.UUID, cancelAmount int64) (*domain.SpendCancelResult, error) {
	now := s.now()
	log.Printf("level=info component=app operation=spend_cancel spend_id=%s amount=%d", spendID, cancelAmount)

	var result domain.SpendCancelResult
	err := s.repo.InTx(ctx, func(tx store.Repository) error {
		spend, err := tx.FindSpendForUpdate(ctx, spendID)
		if err != nil {
			return err
		}
		if spend.Status == domain.SpendStatusCanceled {
			return domain.ErrSpendAlreadyCanceled
		}
		if cancelAmount < 1 || cancelAmount > spend.CancellableAmount() {
			return domain.ErrCancelAmountInvalid
		}

		candidates, err := tx.FindAllocationsForCancel(ctx, spendID, now)
		if err != nil {
			return fmt.Errorf("find allocations: %w", err)
		}

		updatedAllocations := make(map[uuid.UUID]domain.Allocation, len(candidates))
		remaining := cancelAmount
		for _, c := range candidates {
			if remaining <= 0 {
				break
			}
			allocation, canceled := c.Allocation.CancelUpTo(remaining)
			if canceled == 0 {
				continue
			}
			if err := tx.UpdateAllocation(ctx, allocation); err != nil {
				return err
			}
			updatedAllocations[allocation.ID] = allocation

			if c.Grant.IsActive() && !c.Grant.IsExpired(now) {
				credited := c.Grant.Credit(canceled)
				if err := tx.UpdateGrant(ctx, credited); err != nil {
					return err
				}
				result.RestoredToOriginalGrants += canceled
			} else {
				restoreGrant, err := s.restoreGrant(ctx, tx, spend.CustomerID, canceled, now)
				if err != nil {
					return err
				}
				result.RestoredAsNewGrants += canceled
				result.NewRestoreGrants = append(result.NewRestoreGrants, restoreGrant)
			}
			remaining -= canceled
		}

		updatedSpend := spend.ApplyCancel(cancelAmount)
		if err := tx.UpdateSpend(ctx, updatedSpend); err != nil {
			return err
		}

		// Reflect the new per-allocation canceled amounts in the returned
		// spend, preserving the original allocation order.
		for i, a := range updatedSpend.Allocations {
			if updated, ok := updatedAllocations[a.ID]; ok {
				updatedSpend.Allocations[i] = updated
			}
		}
		result.Spend = updatedSpend
		result.CanceledAmount = cancelAmount

		entry := domain.NewLedgerEntry(spend.CustomerID, domain.LedgerEventSpendCancel, spend.ID, cancelAmount, spend.OrderID, now)
		return tx.CreateLedgerEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=app operation=spend_cancel outcome=success spend_id=%s amount=%d restored_original=%d restored_new=%d",
		spendID, cancelAmount, result.RestoredToOriginalGrants, result.RestoredAsNewGrants)
	s.publishPointEvent(ctx, "point.spend.canceled", rabbitmq.PointEvent{
		CustomerID: result.Spend.CustomerID,
		EventType:  string(domain.LedgerEventSpendCancel),
		RefID:      result.Spend.ID,
		Amount:     cancelAmount,
		OrderID:    result.Spend.OrderID,
		Timestamp:  now,
	})
	return &result, nil
}

// ListLedger returns a customer's ledger entries, newest first.
func (s *Service) ListLedger(ctx context.Context, customerID string) ([]domain.LedgerEntry, error) {
	return s.repo.ListLedgerEntries(ctx, customerID)
}
