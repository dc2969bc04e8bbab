// Package errors provides standardized error codes for the controller.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (pairing, vault, sync, storage, server)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by output clients for programmatic
// error handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers that output clients can rely on for error handling.
const (
	// Pairing domain - join-code challenge errors
	CodePairingMalformedCode = "pairing.malformed_code" // Submission is not exactly 6 digits
	CodePairingRejected      = "pairing.rejected"       // Code did not match the expected value
	CodePairingLocked        = "pairing.locked"         // Too many consecutive failures
	CodePairingExpired       = "pairing.expired"        // Join code expired before submission
	CodePairingUsed          = "pairing.used"           // Join code already redeemed
	CodePairingBusy          = "pairing.busy"           // Another challenge is already in progress
	CodePairingCancelled     = "pairing.cancelled"      // Caller abandoned the challenge
	CodePairingNoCode        = "pairing.no_active_code" // No join code has been generated

	// Vault domain - credential persistence errors
	CodeVaultCryptoFailed = "vault.crypto_failed" // Derive/encrypt/decrypt failure

	// Sync domain - state broadcast errors
	CodeSyncNotReady       = "sync.not_ready"       // Transport not connected/authenticated/ready
	CodeSyncPartialFailure = "sync.partial_failure" // Some but not all pushes failed

	// Storage domain - database errors
	CodeStorageNotFound   = "storage.not_found"   // Output or record not found
	CodeStorageOpenFailed = "storage.open_failed" // Database open failed
	CodeStorageSaveFailed = "storage.save_failed" // Failed to save data

	// Server domain - WebSocket and network errors
	CodeServerInvalidMessage = "server.invalid_message" // Malformed or invalid message

	// Auth domain - session token errors
	CodeAuthRequired      = "auth.required"       // Authentication required
	CodeAuthInvalid       = "auth.invalid"        // Invalid token or credentials
	CodeAuthOutputRevoked = "auth.output_revoked" // Output has been revoked

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "pairing.locked")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// NotFound creates a "storage.not_found" error.
func NotFound(resource string) *CodedError {
	return New(CodeStorageNotFound, fmt.Sprintf("%s not found", resource))
}

// InvalidMessage creates a "server.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeServerInvalidMessage, reason)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}

// PairingLocked creates a "pairing.locked" error carrying the remaining
// lock window so the caller can display a countdown.
func PairingLocked(retryAfterMs int64) *CodedError {
	return New(CodePairingLocked, fmt.Sprintf("too many failed attempts, retry in %dms", retryAfterMs))
}

// PairingBusy creates a "pairing.busy" error.
// A second attach while a challenge is pending is rejected rather than
// queued, since simultaneous pairing prompts would confuse the operator.
func PairingBusy() *CodedError {
	return New(CodePairingBusy, "another device is already pairing")
}

// SyncNotReady creates a "sync.not_ready" error.
func SyncNotReady() *CodedError {
	return New(CodeSyncNotReady, "transport is not connected, authenticated and ready")
}
