/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL for the point_grant, point_spend,
 * point_spend_allocation, point_ledger and point_policy tables.
 *
 * The ORDER BY clauses of the locked finders mirror the domain comparators
 * exactly (manual-first/soonest-expiry for spends, usable-grant-first for
 * cancellation restoration); the comparators in internal/domain are the
 * authoritative definition of both orderings.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pointsystem/point-service/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// repository code runs inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository is a concrete implementation of the Repository interface
// for PostgreSQL.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InTx begins a transaction and runs fn against a repository bound to it.
// On a nested call pgx opens a savepoint, so the outermost commit decides.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx Repository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresRepository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateGrant inserts a new grant row.
func (r *PostgresRepository) CreateGrant(ctx context.Context, grant domain.Grant) error {
	query := `
		INSERT INTO point_grant (id, customer_id, grant_type, amount_total, amount_available, expires_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		grant.ID, grant.CustomerID, grant.Type, grant.AmountTotal,
		grant.AmountAvailable, grant.ExpiresAt, grant.Status, grant.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}
	return nil
}

// UpdateGrant persists the mutable columns of a grant. amount_total and
// created_at are immutable and deliberately absent from the statement.
func (r *PostgresRepository) UpdateGrant(ctx context.Context, grant domain.Grant) error {
	query := `
		UPDATE point_grant
		SET amount_available = $2, status = $3
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, grant.ID, grant.AmountAvailable, grant.Status)
	if err != nil {
		return fmt.Errorf("update grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGrantNotFound
	}
	return nil
}

// FindGrantForUpdate loads a grant under an exclusive row lock.
func (r *PostgresRepository) FindGrantForUpdate(ctx context.Context, grantID uuid.UUID) (domain.Grant, error) {
	query := `
		SELECT id, customer_id, grant_type, amount_total, amount_available, expires_at, status, created_at
		FROM point_grant
		WHERE id = $1
		FOR UPDATE
	`
	grant, err := scanGrant(r.db.QueryRow(ctx, query, grantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Grant{}, ErrGrantNotFound
		}
		return domain.Grant{}, err
	}
	return grant, nil
}

// SumAvailableBalance totals the customer's available amount over active,
// unexpired grants.
func (r *PostgresRepository) SumAvailableBalance(ctx context.Context, customerID string, now time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount_available), 0)
		FROM point_grant
		WHERE customer_id = $1 AND status = $2 AND expires_at > $3
	`
	var balance int64
	if err := r.db.QueryRow(ctx, query, customerID, domain.GrantStatusActive, now).Scan(&balance); err != nil {
		return 0, fmt.Errorf("sum available balance: %w", err)
	}
	return balance, nil
}

// FindUsableGrantsForUpdate locks and returns the customer's usable grants in
// spend order: manual grants first, then soonest expiry, then oldest first.
func (r *PostgresRepository) FindUsableGrantsForUpdate(ctx context.Context, customerID string, now time.Time) ([]domain.Grant, error) {
	query := `
		SELECT id, customer_id, grant_type, amount_total, amount_available, expires_at, status, created_at
		FROM point_grant
		WHERE customer_id = $1 AND status = $2 AND expires_at > $3 AND amount_available > 0
		ORDER BY CASE WHEN grant_type = $4 THEN 0 ELSE 1 END, expires_at ASC, created_at ASC
		FOR UPDATE
	`
	rows, err := r.db.Query(ctx, query, customerID, domain.GrantStatusActive, now, domain.GrantTypeManual)
	if err != nil {
		return nil, fmt.Errorf("query usable grants: %w", err)
	}
	defer rows.Close()

	var grants []domain.Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// ExistsSpend reports whether a spend already exists for the order.
func (r *PostgresRepository) ExistsSpend(ctx context.Context, customerID, orderID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM point_spend WHERE customer_id = $1 AND order_id = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, customerID, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check spend existence: %w", err)
	}
	return exists, nil
}

// CreateSpend inserts the spend row and its allocation batch. The unique
// index on (customer_id, order_id) is the authoritative duplicate-order
// guard; a violation surfaces as domain.ErrDuplicateOrder so a race between
// two concurrent spends leaves exactly one recorded.
func (r *PostgresRepository) CreateSpend(ctx context.Context, spend domain.Spend) error {
	spendQuery := `
		INSERT INTO point_spend (id, customer_id, order_id, amount_total, amount_canceled, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, spendQuery,
		spend.ID, spend.CustomerID, spend.OrderID, spend.AmountTotal,
		spend.AmountCanceled, spend.Status, spend.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateOrder
		}
		return fmt.Errorf("insert spend: %w", err)
	}

	allocationQuery := `
		INSERT INTO point_spend_allocation (id, spend_id, grant_id, amount_used, amount_canceled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, allocation := range spend.Allocations {
		_, err := r.db.Exec(ctx, allocationQuery,
			allocation.ID, allocation.SpendID, allocation.GrantID,
			allocation.AmountUsed, allocation.AmountCanceled, allocation.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}
	}
	return nil
}

// UpdateSpend persists the cancellation progress of a spend.
func (r *PostgresRepository) UpdateSpend(ctx context.Context, spend domain.Spend) error {
	query := `
		UPDATE point_spend
		SET amount_canceled = $2, status = $3
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, spend.ID, spend.AmountCanceled, spend.Status)
	if err != nil {
		return fmt.Errorf("update spend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSpendNotFound
	}
	return nil
}

// FindSpendForUpdate loads a spend and its allocations, locking the spend row.
func (r *PostgresRepository) FindSpendForUpdate(ctx context.Context, spendID uuid.UUID) (domain.Spend, error) {
	query := `
		SELECT id, customer_id, order_id, amount_total, amount_canceled, status, created_at
		FROM point_spend
		WHERE id = $1
		FOR UPDATE
	`
	var spend domain.Spend
	err := r.db.QueryRow(ctx, query, spendID).Scan(
		&spend.ID, &spend.CustomerID, &spend.OrderID, &spend.AmountTotal,
		&spend.AmountCanceled, &spend.Status, &spend.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Spend{}, ErrSpendNotFound
		}
		return domain.Spend{}, fmt.Errorf("query spend: %w", err)
	}

	allocationQuery := `
		SELECT id, spend_id, grant_id, amount_used, amount_canceled, created_at
		FROM point_spend_allocation
		WHERE spend_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, allocationQuery, spendID)
	if err != nil {
		return domain.Spend{}, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var allocation domain.Allocation
		err := rows.Scan(
			&allocation.ID, &allocation.SpendID, &allocation.GrantID,
			&allocation.AmountUsed, &allocation.AmountCanceled, &allocation.CreatedAt,
		)
		if err != nil {
			return domain.Spend{}, fmt.Errorf("scan allocation: %w", err)
		}
		spend.Allocations = append(spend.Allocations, allocation)
	}
	return spend, rows.Err()
}

// UpdateAllocation persists the canceled amount of one allocation.
func (r *PostgresRepository) UpdateAllocation(ctx context.Context, allocation domain.Allocation) error {
	query := `
		UPDATE point_spend_allocation
		SET amount_canceled = $2
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, allocation.ID, allocation.AmountCanceled); err != nil {
		return fmt.Errorf("update allocation: %w", err)
	}
	return nil
}

// FindAllocationsForCancel returns the spend's allocations joined with their
// grants, both locked, in restoration order: still-usable grants first, then
// soonest grant expiry, then oldest allocation first.
func (r *PostgresRepository) FindAllocationsForCancel(ctx context.Context, spendID uuid.UUID, now time.Time) ([]domain.RestorationCandidate, error) {
	query := `
		SELECT a.id, a.spend_id, a.grant_id, a.amount_used, a.amount_canceled, a.created_at,
		       g.id, g.customer_id, g.grant_type, g.amount_total, g.amount_available, g.expires_at, g.status, g.created_at
		FROM point_spend_allocation a
		JOIN point_grant g ON g.id = a.grant_id
		WHERE a.spend_id = $1
		ORDER BY CASE WHEN g.expires_at > $2 AND g.status = $3 THEN 0 ELSE 1 END,
		         g.expires_at ASC, a.created_at ASC
		FOR UPDATE OF a, g
	`
	rows, err := r.db.Query(ctx, query, spendID, now, domain.GrantStatusActive)
	if err != nil {
		return nil, fmt.Errorf("query allocations for cancel: %w", err)
	}
	defer rows.Close()

	var candidates []domain.RestorationCandidate
	for rows.Next() {
		var c domain.RestorationCandidate
		err := rows.Scan(
			&c.Allocation.ID, &c.Allocation.SpendID, &c.Allocation.GrantID,
			&c.Allocation.AmountUsed, &c.Allocation.AmountCanceled, &c.Allocation.CreatedAt,
			&c.Grant.ID, &c.Grant.CustomerID, &c.Grant.Type, &c.Grant.AmountTotal,
			&c.Grant.AmountAvailable, &c.Grant.ExpiresAt, &c.Grant.Status, &c.Grant.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan allocation for cancel: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// CreateLedgerEntry appends one immutable audit record.
func (r *PostgresRepository) CreateLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error {
	query := `
		INSERT INTO point_ledger (id, customer_id, event_type, ref_id, amount, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.CustomerID, entry.EventType, entry.RefID,
		entry.Amount, entry.OrderID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListLedgerEntries returns a customer's audit trail, newest first.
func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, customerID string) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, customer_id, event_type, ref_id, amount, COALESCE(order_id, ''), created_at
		FROM point_ledger
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		err := rows.Scan(
			&entry.ID, &entry.CustomerID, &entry.EventType, &entry.RefID,
			&entry.Amount, &entry.OrderID, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// FindPolicyValue returns the raw stored value for a policy key.
func (r *PostgresRepository) FindPolicyValue(ctx context.Context, key string) (string, error) {
	query := `SELECT policy_value FROM point_policy WHERE policy_key = $1`
	var value string
	if err := r.db.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrPolicyNotFound
		}
		return "", fmt.Errorf("query policy: %w", err)
	}
	return value, nil
}

func scanGrant(row pgx.Row) (domain.Grant, error) {
	var grant domain.Grant
	err := row.Scan(
		&grant.ID, &grant.CustomerID, &grant.Type, &grant.AmountTotal,
		&grant.AmountAvailable, &grant.ExpiresAt, &grant.Status, &grant.CreatedAt,
	)
	if err != nil {
		return domain.Grant{}, err
	}
	return grant, nil
}
