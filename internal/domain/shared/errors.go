package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target carries the same error code, so that
// errors.Is(err, ErrInvalidQuantity) matches messages built with NewDomainError.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes of the stock ledger taxonomy
const (
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidQuantity     = "INVALID_QUANTITY"
	CodeOverConsumption     = "OVER_CONSUMPTION"
	CodeInvalidState        = "INVALID_STATE"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeStorageFailure      = "STORAGE_FAILURE"
	CodeLockUnavailable     = "LOCK_UNAVAILABLE"
)

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidQuantity     = NewDomainError(CodeInvalidQuantity, "Quantity must be positive")
	ErrOverConsumption     = NewDomainError(CodeOverConsumption, "Amount exceeds remaining lot quantity")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrStorageFailure      = NewDomainError(CodeStorageFailure, "Storage operation failed")
	ErrLockUnavailable     = NewDomainError(CodeLockUnavailable, "Product is locked by another operation")
)

// StorageError wraps an underlying persistence error. It matches
// ErrStorageFailure through errors.Is and unwraps to the driver error.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err as a storage failure for the named operation.
// Domain errors pass through unchanged so NotFound and friends keep their code.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Error implements the error interface
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying driver error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is matches ErrStorageFailure
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

// AsDomainError converts any error into a DomainError for transport.
// Storage failures keep their code, anything unknown becomes nil.
func AsDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, ErrStorageFailure) {
		return ErrStorageFailure
	}
	return nil
}
