// Package errors provides the standardized error type shared by the reaper components.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeAuthFailure    ErrorCode = "AUTH_FAILURE"
	ErrCodeTransportError ErrorCode = "TRANSPORT_ERROR"
	ErrCodeSchemaError    ErrorCode = "SCHEMA_ERROR"
	ErrCodeConfigMissing  ErrorCode = "CONFIG_MISSING"
	ErrCodeDeleteFailed   ErrorCode = "DELETE_FAILED"

	ErrCodeLeaseHeld   ErrorCode = "LEASE_HELD"
	ErrCodeLeaseFailed ErrorCode = "LEASE_FAILED"

	ErrCodeAuditWriteFailed       ErrorCode = "AUDIT_WRITE_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeReportValidationFailed ErrorCode = "REPORT_VALIDATION_FAILED"

	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Helpers
// ==========================

// CodeOf returns the code of the first StandardError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HasCode reports whether err's chain carries a StandardError with the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	se := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		se.Details = cause.Error()
	}
	return se
}

// ==========================
// 3. Error Constructors
// ==========================

// NewAuthFailureError reports a failed client-credentials exchange. Fatal for the run.
func NewAuthFailureError(err error) *StandardError {
	return newError(ErrCodeAuthFailure, "Credential exchange failed", err, false)
}

// NewTransportError reports an HTTP or network failure against the management API.
func NewTransportError(operation string, err error) *StandardError {
	return newError(ErrCodeTransportError, fmt.Sprintf("Request for %s failed", operation), err, true).
		WithMetadata("operation", operation)
}

// NewSchemaError reports a response that is missing or malforms an expected field.
func NewSchemaError(operation string, err error) *StandardError {
	return newError(ErrCodeSchemaError, fmt.Sprintf("Unexpected response shape for %s", operation), err, false).
		WithMetadata("operation", operation)
}

// NewConfigMissingError reports required settings that are empty.
func NewConfigMissingError(keys ...string) *StandardError {
	se := newError(ErrCodeConfigMissing, "Required configuration is missing", nil, false)
	se.Details = fmt.Sprintf("keys: %v", keys)
	return se.WithMetadata("keys", keys)
}

// NewDeleteFailedError reports a live deployment deletion that did not complete.
func NewDeleteFailedError(deployment string, err error) *StandardError {
	return newError(ErrCodeDeleteFailed, fmt.Sprintf("Delete of deployment '%s' failed", deployment), err, true).
		WithMetadata("deployment", deployment)
}

// NewLeaseHeldError reports that another holder owns the run lease.
func NewLeaseHeldError(key string) *StandardError {
	se := newError(ErrCodeLeaseHeld, "Run lease is held by another instance", nil, true)
	se.Details = fmt.Sprintf("key: %s", key)
	return se
}

// NewLeaseFailedError reports a lease store failure.
func NewLeaseFailedError(key string, err error) *StandardError {
	return newError(ErrCodeLeaseFailed, fmt.Sprintf("Lease store error for '%s'", key), err, true)
}

// NewAuditWriteFailedError reports a failed audit sink write.
func NewAuditWriteFailedError(sink string, err error) *StandardError {
	return newError(ErrCodeAuditWriteFailed, fmt.Sprintf("Audit sink '%s' write failed", sink), err, true)
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, fmt.Sprintf("Notification via %s failed", notificationType), err, true)
}

// NewReportValidationFailedError reports a run report that does not match its schema.
func NewReportValidationFailedError(details string) *StandardError {
	se := newError(ErrCodeReportValidationFailed, "Run report failed schema validation", nil, false)
	se.Details = details
	return se
}

// NewInvalidInputError reports job variables that cannot be decoded.
func NewInvalidInputError(err error) *StandardError {
	return newError(ErrCodeInvalidInput, "Job variables are invalid", err, false)
}
