/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the point engines need. Defining an interface decouples the business
 * logic from PostgreSQL and lets tests substitute in-memory fakes.
 *
 * Locking contract: the ForUpdate methods acquire exclusive row locks that
 * are held until the surrounding InTx closure commits or rolls back. The
 * ordered finders return rows pre-sorted by the domain comparators
 * (domain.CompareGrantsForSpend / domain.CompareRestorationCandidates).
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For entity ids.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pointsystem/point-service/internal/domain"
)

var (
	ErrGrantNotFound  = errors.New("grant not found")
	ErrSpendNotFound  = errors.New("spend not found")
	ErrPolicyNotFound = errors.New("policy not found")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// InTx runs fn inside one transaction: every write made through the
	// repository passed to fn commits atomically, or none do. Row locks taken
	// inside fn are released on commit/rollback.
	InTx(ctx context.Context, fn func(tx Repository) error) error

	// Grant methods
	CreateGrant(ctx context.Context, grant domain.Grant) error
	UpdateGrant(ctx context.Context, grant domain.Grant) error
	FindGrantForUpdate(ctx context.Context, grantID uuid.UUID) (domain.Grant, error)
	// SumAvailableBalance totals amount_available over the customer's active,
	// unexpired grants.
	SumAvailableBalance(ctx context.Context, customerID string, now time.Time) (int64, error)
	// FindUsableGrantsForUpdate returns the customer's usable grants locked
	// and pre-sorted into spend order.
	FindUsableGrantsForUpdate(ctx context.Context, customerID string, now time.Time) ([]domain.Grant, error)

	// Spend methods
	ExistsSpend(ctx context.Context, customerID, orderID string) (bool, error)
	// CreateSpend persists the spend and its allocation batch. A unique
	// violation on (customer_id, order_id) surfaces as domain.ErrDuplicateOrder.
	CreateSpend(ctx context.Context, spend domain.Spend) error
	UpdateSpend(ctx context.Context, spend domain.Spend) error
	FindSpendForUpdate(ctx context.Context, spendID uuid.UUID) (domain.Spend, error)
	UpdateAllocation(ctx context.Context, allocation domain.Allocation) error
	// FindAllocationsForCancel returns the spend's allocations joined with
	// their grants, both locked, pre-sorted into restoration order.
	FindAllocationsForCancel(ctx context.Context, spendID uuid.UUID, now time.Time) ([]domain.RestorationCandidate, error)

	// Ledger methods
	CreateLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, customerID string) ([]domain.LedgerEntry, error)

	// Policy methods
	// FindPolicyValue returns the raw stored value for a policy key, or
	// ErrPolicyNotFound when the key is absent.
	FindPolicyValue(ctx context.Context, key string) (string, error)
}
