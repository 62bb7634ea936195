/**
 * @description
 * Grant engine: issuing new grants, canceling unused grants, and minting
 * restore grants on behalf of the spend-cancellation path.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pointsystem/point-service/internal/domain"
	"github.com/pointsystem/point-service/internal/store"
	"github.com/pointsystem/point-service/pkg/rabbitmq"
)

// GrantPoints validates and persists a new grant for a customer. The amount
// must fall within [1, max-per-transaction]; the expiry, when supplied, must
// lie in [now+1 day, now+5 years); and the customer's resulting available
// balance must stay under the per-customer cap. On success exactly one grant
// row and one ledger entry are written.
func (s *Service) GrantPoints(ctx context.Context, customerID string, amount int64, grantType domain.GrantType, expiresAt *time.Time) (*domain.Grant, error) {
	now := s.now()
	log.Printf("level=info component=app operation=grant customer_id=%s amount=%d type=%s", customerID, amount, grantType)

	maxPerTransaction := s.policies.MaxGrantPerTransaction(ctx)
	if amount < 1 || amount > maxPerTransaction {
		return nil, domain.ErrAmountOutOfRange
	}

	resolvedExpiry, err := s.resolveExpiresAt(ctx, expiresAt, now)
	if err != nil {
		return nil, err
	}

	var grant domain.Grant
	err = s.repo.InTx(ctx, func(tx store.Repository) error {
		currentBalance, err := tx.SumAvailableBalance(ctx, customerID, now)
		if err != nil {
			return fmt.Errorf("sum available balance: %w", err)
		}
		maxBalance := s.policies.MaxBalancePerCustomer(ctx)
		if currentBalance+amount > maxBalance {
			return domain.ErrBalanceLimitExceeded
		}

		grant = domain.NewGrant(customerID, grantType, amount, resolvedExpiry, now)
		if err := tx.CreateGrant(ctx, grant); err != nil {
			return err
		}
		entry := domain.NewLedgerEntry(customerID, domain.LedgerEventGrant, grant.ID, amount, "", now)
		return tx.CreateLedgerEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=app operation=grant outcome=success grant_id=%s customer_id=%s amount=%d", grant.ID, customerID, amount)
	s.publishPointEvent(ctx, "point.granted", rabbitmq.PointEvent{
		CustomerID: customerID,
		EventType:  string(domain.LedgerEventGrant),
		RefID:      grant.ID,
		Amount:     amount,
		Timestamp:  now,
	})
	return &grant, nil
}

// CancelGrant cancels a grant that has never been debited. The grant row is
// locked for the duration of the operation; the second of two concurrent
// cancellations fails with ErrGrantAlreadyCanceled.
func (s *Service) CancelGrant(ctx context.Context, grantID uuid.UUID) (*domain.Grant, error) {
	now := s.now()
	log.Printf("level=info component=app operation=grant_cancel grant_id=%s", grantID)

	var canceled domain.Grant
	err := s.repo.InTx(ctx, func(tx store.Repository) error {
		grant, err := tx.FindGrantForUpdate(ctx, grantID)
		if err != nil {
			return err
		}
		if !grant.IsActive() {
			return domain.ErrGrantAlreadyCanceled
		}
		if !grant.IsCancelable() {
			return domain.ErrGrantAlreadyUsed
		}

		canceled = grant.Cancel()
		if err := tx.UpdateGrant(ctx, canceled); err != nil {
			return err
		}
		entry := domain.NewLedgerEntry(grant.CustomerID, domain.LedgerEventGrantCancel, grant.ID, -grant.AmountTotal, "", now)
		return tx.CreateLedgerEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=app operation=grant_cancel outcome=success grant_id=%s customer_id=%s amount=%d", canceled.ID, canceled.CustomerID, canceled.AmountTotal)
	s.publishPointEvent(ctx, "point.grant.canceled", rabbitmq.PointEvent{
		CustomerID: canceled.CustomerID,
		EventType:  string(domain.LedgerEventGrantCancel),
		RefID:      canceled.ID,
		Amount:     -canceled.AmountTotal,
		Timestamp:  now,
	})
	return &canceled, nil
}

// restoreGrant mints a restore-type grant inside the caller's transaction.
// It is a compensating action for spend cancellation, so the amount and
// balance limits are not re-validated here.
func (s *Service) restoreGrant(ctx context.Context, tx store.Repository, customerID string, amount int64, now time.Time) (domain.Grant, error) {
	expireDays := s.policies.DefaultExpireDays(ctx)
	expiresAt := now.Add(time.Duration(expireDays) * 24 * time.Hour)

	grant := domain.NewGrant(customerID, domain.GrantTypeRestore, amount, expiresAt, now)
	if err := tx.CreateGrant(ctx, grant); err != nil {
		return domain.Grant{}, err
	}
	entry := domain.NewLedgerEntry(customerID, domain.LedgerEventRestoreGrant, grant.ID, amount, "", now)
	if err := tx.CreateLedgerEntry(ctx, entry); err != nil {
		return domain.Grant{}, err
	}
	log.Printf("level=info component=app operation=restore_grant grant_id=%s customer_id=%s amount=%d", grant.ID, customerID, amount)
	return grant, nil
}

// resolveExpiresAt applies the default expiry window when none was requested
// and validates an explicit one against [now+1 day, now+5 years).
func (s *Service) resolveExpiresAt(ctx context.Context, requested *time.Time, now time.Time) (time.Time, error) {
	if requested == nil {
		expireDays := s.policies.DefaultExpireDays(ctx)
		return now.Add(time.Duration(expireDays) * 24 * time.Hour), nil
	}

	minExpires := now.Add(minExpireDays * 24 * time.Hour)
	maxExpires := now.Add(maxExpireYears * 365 * 24 * time.Hour)
	if requested.Before(minExpires) || !requested.Before(maxExpires) {
		return time.Time{}, domain.ErrExpiresAtInvalid
	}
	return *requested, nil
}
