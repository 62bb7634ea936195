/**
 * @description
 * Business-rule rejections shared by the grant and spend engines. These are
 * terminal decisions, not transient faults: a failed validation aborts the
 * operation before any persistent mutation, and the sentinel error is the
 * only observable result. The API layer maps each one to an HTTP status.
 */

package domain

import "errors"

var (
	// ErrAmountOutOfRange rejects a non-positive amount, or a grant amount
	// above the per-transaction cap.
	ErrAmountOutOfRange = errors.New("amount out of range")

	// ErrExpiresAtInvalid rejects an expiry outside [now+1 day, now+5 years).
	ErrExpiresAtInvalid = errors.New("grant expiry out of range")

	// ErrBalanceLimitExceeded rejects a grant that would push the customer's
	// available balance over the per-customer cap.
	ErrBalanceLimitExceeded = errors.New("customer balance limit exceeded")

	// ErrGrantAlreadyCanceled rejects canceling a grant twice.
	ErrGrantAlreadyCanceled = errors.New("grant already canceled")

	// ErrGrantAlreadyUsed rejects canceling a grant after any debit.
	ErrGrantAlreadyUsed = errors.New("grant already used")

	// ErrDuplicateOrder rejects a spend for a (customer, order) pair that
	// already has one.
	ErrDuplicateOrder = errors.New("duplicate order")

	// ErrInsufficientBalance rejects a spend exceeding the usable total.
	ErrInsufficientBalance = errors.New("insufficient point balance")

	// ErrSpendAlreadyCanceled rejects canceling a fully canceled spend.
	ErrSpendAlreadyCanceled = errors.New("spend already canceled")

	// ErrCancelAmountInvalid rejects a cancel amount outside [1, cancellable].
	ErrCancelAmountInvalid = errors.New("cancel amount invalid")
)
