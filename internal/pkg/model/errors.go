package model

import (
	"fmt"

	"github.com/hermeznetwork/tracerr"
)

// ErrorCode is a stable identifier surfaced to API clients. Codes never
// change once published; messages may.
type ErrorCode string

const (
	// Domain errors, client induced.
	ErrCodeBatchNotFound           ErrorCode = "BATCH_NOT_FOUND"
	ErrCodeInvalidBatchStatus      ErrorCode = "INVALID_BATCH_STATUS"
	ErrCodeCommitmentAlreadyExists ErrorCode = "COMMITMENT_ALREADY_EXISTS"
	ErrCodeInvalidCommitment       ErrorCode = "INVALID_COMMITMENT"
	ErrCodeRevealPhaseNotActive    ErrorCode = "REVEAL_PHASE_NOT_ACTIVE"
	ErrCodeNoMatchingCommitment    ErrorCode = "NO_MATCHING_COMMITMENT"
	ErrCodeTxRevealMismatch        ErrorCode = "TRANSACTION_REVEAL_MISMATCH"
	ErrCodeNoActiveBatch           ErrorCode = "NO_ACTIVE_BATCH"
	ErrCodeInvalidArgument         ErrorCode = "INVALID_ARGUMENT"

	// Infrastructure errors.
	ErrCodeBlockchainConnection   ErrorCode = "BLOCKCHAIN_CONNECTION_ERROR"
	ErrCodeContractInteraction    ErrorCode = "CONTRACT_INTERACTION_ERROR"
	ErrCodeDatabase               ErrorCode = "DATABASE_ERROR"
	ErrCodeCache                  ErrorCode = "CACHE_ERROR"
	ErrCodePersistenceAfterCommit ErrorCode = "PERSISTENCE_AFTER_COMMIT"

	// Application errors.
	ErrCodeValidation     ErrorCode = "VALIDATION_ERROR"
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeAuthorization  ErrorCode = "AUTHORIZATION_ERROR"
	ErrCodeRateLimit      ErrorCode = "RATE_LIMIT_ERROR"
)

// DomainError is a client-induced failure returned as a value from aggregate
// methods and use-cases. It never crosses the API boundary as a panic.
type DomainError struct {
	Code    ErrorCode
	Message string

	// Set only for INVALID_BATCH_STATUS.
	Expected BatchStatus
	Actual   BatchStatus
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewDomainError(code ErrorCode, format string, args ...interface{}) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidStatusError reports an illegal state transition attempt.
func NewInvalidStatusError(expected, actual BatchStatus) *DomainError {
	return &DomainError{
		Code:     ErrCodeInvalidBatchStatus,
		Message:  fmt.Sprintf("invalid batch status: expected %s, actual %s", expected, actual),
		Expected: expected,
		Actual:   actual,
	}
}

// InfraError wraps a repository, cache or bridge failure with a stable code.
type InfraError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *InfraError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InfraError) Unwrap() error { return e.Err }

func NewInfraError(code ErrorCode, err error, format string, args ...interface{}) *InfraError {
	return &InfraError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the stable error code from any error produced by the
// coordinator. Unclassified errors map to VALIDATION_ERROR.
func CodeOf(err error) ErrorCode {
	switch e := tracerr.Unwrap(err).(type) {
	case *DomainError:
		return e.Code
	case *InfraError:
		return e.Code
	}
	return ErrCodeValidation
}

// IsDomainErr reports whether err carries one of the client-induced codes.
func IsDomainErr(err error) bool {
	_, ok := tracerr.Unwrap(err).(*DomainError)
	return ok
}
