package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies service errors for propagation and HTTP mapping
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindNotFound            ErrorKind = "not_found"
	KindForbidden           ErrorKind = "forbidden"
	KindStateConflict       ErrorKind = "state_conflict"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindWalletLocked        ErrorKind = "wallet_locked"
	KindExternalDependency  ErrorKind = "external_dependency"
	KindInvariantViolation  ErrorKind = "invariant_violation"
	KindInternal            ErrorKind = "internal"
)

// Error is a classified service error with a stable machine-readable code.
// Two Errors match under errors.Is when their codes are equal.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any Error carrying the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e carrying a more specific message
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// Wrap returns a copy of e recording err as its cause
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// AsError extracts the classified error from err, if any
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

// Validation
var (
	ErrValidation             = newError(KindValidation, "VALIDATION_ERROR", "invalid request")
	ErrInvalidID              = newError(KindValidation, "INVALID_ID", "invalid identifier")
	ErrInvalidAmount          = newError(KindValidation, "INVALID_AMOUNT", "amount must be a positive integer")
	ErrInvalidOption          = newError(KindValidation, "INVALID_OPTION", "option does not belong to this poll")
	ErrStakeOutOfRange        = newError(KindValidation, "STAKE_OUT_OF_RANGE", "stake amount is outside the allowed range")
	ErrWithdrawalBelowMinimum = newError(KindValidation, "WITHDRAWAL_BELOW_MINIMUM", "withdrawal amount is below the minimum")
	ErrInvalidSignature       = newError(KindValidation, "INVALID_SIGNATURE", "webhook signature is invalid")
)

// Lookup
var (
	ErrPollNotFound        = newError(KindNotFound, "POLL_NOT_FOUND", "poll not found")
	ErrStakeNotFound       = newError(KindNotFound, "STAKE_NOT_FOUND", "stake not found")
	ErrTransactionNotFound = newError(KindNotFound, "TRANSACTION_NOT_FOUND", "transaction not found")
	ErrWalletNotFound      = newError(KindNotFound, "WALLET_NOT_FOUND", "wallet not found")
)

// Authorization
var ErrForbidden = newError(KindForbidden, "FORBIDDEN", "you are not allowed to perform this action")

// State conflicts
var (
	ErrDuplicateStake       = newError(KindStateConflict, "DUPLICATE_STAKE", "you have already staked on this poll")
	ErrPollNotActive        = newError(KindStateConflict, "POLL_NOT_ACTIVE", "poll is not accepting stakes")
	ErrAlreadyResolved      = newError(KindStateConflict, "ALREADY_RESOLVED", "poll has already been resolved")
	ErrAlreadyCancelled     = newError(KindStateConflict, "ALREADY_CANCELLED", "poll has already been cancelled")
	ErrPollNotClosable      = newError(KindStateConflict, "POLL_NOT_CLOSABLE", "only active polls can be closed")
	ErrSettlementInProgress = newError(KindStateConflict, "SETTLEMENT_IN_PROGRESS", "a different settlement is already running for this poll")
	ErrPollHasStakes        = newError(KindStateConflict, "POLL_HAS_STAKES", "poll has stakes that are not refunded")
	ErrStakingDisabled      = newError(KindStateConflict, "STAKING_DISABLED", "staking is currently disabled")
	ErrWithdrawalsDisabled  = newError(KindStateConflict, "WITHDRAWALS_DISABLED", "withdrawals are currently disabled")
	ErrTransactionState     = newError(KindStateConflict, "INVALID_TRANSACTION_STATE", "transaction is not in a state that allows this action")
	ErrReferenceConflict    = newError(KindStateConflict, "REFERENCE_CONFLICT", "reference is already used by a different transaction")
)

// Balance
var (
	ErrInsufficientBalance = newError(KindInsufficientBalance, "INSUFFICIENT_BALANCE", "insufficient wallet balance")
	ErrWalletLocked        = newError(KindWalletLocked, "WALLET_LOCKED", "wallet is locked")
)

// External dependencies
var (
	ErrGatewayUnavailable = newError(KindExternalDependency, "GATEWAY_UNAVAILABLE", "payment gateway did not respond; the transaction will be reconciled")
	ErrGatewayRejected    = newError(KindExternalDependency, "GATEWAY_REJECTED", "payment gateway rejected the request")
)

// Invariant violations
var (
	ErrPoolMismatch          = newError(KindInvariantViolation, "POOL_MISMATCH", "cached pool totals do not match recorded stakes")
	ErrPayoutExceedsPool     = newError(KindInvariantViolation, "PAYOUT_EXCEEDS_POOL", "computed payouts exceed the pool")
	ErrDoubleCredit          = newError(KindInvariantViolation, "DOUBLE_CREDIT", "a refunded withdrawal was also paid out")
	ErrDepositAmountMismatch = newError(KindInvariantViolation, "DEPOSIT_AMOUNT_MISMATCH", "gateway reported a different deposit amount")
)

// ErrInternal wraps unexpected storage or runtime failures
var ErrInternal = newError(KindInternal, "INTERNAL_ERROR", "internal server error")

// internal wraps an unclassified error; classified errors pass through unchanged
func internal(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return ErrInternal.Wrap(fmt.Errorf("%s: %w", op, err))
}
