package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds indicates the wallet cannot cover value plus gas
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrMetadataNotFound indicates the metadata service has no entry for a token
	ErrMetadataNotFound = errors.New("metadata not found")

	// ErrPendingTransaction indicates an identical write is still awaiting confirmation
	ErrPendingTransaction = errors.New("a transaction for this action is still pending")

	// ErrUnknownMethod indicates a query names a method the contract ABI does not have
	ErrUnknownMethod = errors.New("unknown contract method")
)

// LedgerUnavailableError reports a transport failure talking to the ledger node
type LedgerUnavailableError struct {
	Op  string
	Err error
}

func (e *LedgerUnavailableError) Error() string {
	return fmt.Sprintf("ledger unavailable during %s: %v", e.Op, e.Err)
}

func (e *LedgerUnavailableError) Unwrap() error {
	return e.Err
}

// MethodRevertedError reports a read call the contract rejected
type MethodRevertedError struct {
	Method string
	Reason string
}

func (e *MethodRevertedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s reverted", e.Method)
	}
	return fmt.Sprintf("%s reverted: %s", e.Method, e.Reason)
}

// ContractRejectionError reports a write the ledger refused. Reason is the ledger's own text.
type ContractRejectionError struct {
	Method string
	Reason string
}

func (e *ContractRejectionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s rejected by ledger", e.Method)
	}
	return fmt.Sprintf("%s rejected by ledger: %s", e.Method, e.Reason)
}

// ValidationError reports a failed local precondition. No ledger round trip was made.
type ValidationError struct {
	Action Action
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("cannot %s: %s", e.Action, e.Reason)
}

// IsValidationError reports whether err is, or wraps, a ValidationError
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsLedgerUnavailable reports whether err is, or wraps, a LedgerUnavailableError
func IsLedgerUnavailable(err error) bool {
	var v *LedgerUnavailableError
	return errors.As(err, &v)
}

// IsContractRejection reports whether err is, or wraps, a ContractRejectionError
func IsContractRejection(err error) bool {
	var v *ContractRejectionError
	return errors.As(err, &v)
}
