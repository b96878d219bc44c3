// Package errors provides standardized error handling for the notification
// engine.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Configuration errors: fail fast, the notification stays in draft.
	ErrCodeTemplateNotFound         ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateValidationFailed ErrorCode = "TEMPLATE_VALIDATION_FAILED"
	ErrCodeRecipientSpecInvalid     ErrorCode = "RECIPIENT_SPEC_INVALID"
	ErrCodeChannelUnknown           ErrorCode = "CHANNEL_UNKNOWN"

	// Resolution errors: abort the sending transition, safe to retry.
	ErrCodeRecipientResolutionFailed ErrorCode = "RECIPIENT_RESOLUTION_FAILED"
	ErrCodeDirectoryUnavailable      ErrorCode = "DIRECTORY_UNAVAILABLE"

	// Lifecycle errors: caller bugs, never retried.
	ErrCodeStateInvalid        ErrorCode = "NOTIFICATION_STATE_INVALID"
	ErrCodeApprovalRequired    ErrorCode = "APPROVAL_REQUIRED"
	ErrCodeNotificationExpired ErrorCode = "NOTIFICATION_EXPIRED"

	// Delivery and storage errors.
	ErrCodeDispatchSendFailed   ErrorCode = "DISPATCH_SEND_FAILED"
	ErrCodeStoreQueryFailed     ErrorCode = "STORE_QUERY_FAILED"
	ErrCodeNotificationNotFound ErrorCode = "NOTIFICATION_NOT_FOUND"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is makes StandardError comparable by code with errors.Is.
func (e *StandardError) Is(target error) bool {
	var other *StandardError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// CodeOf extracts the error code, or empty when err is not a StandardError.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// IsRetryable reports whether the error is worth retrying wholesale.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// ==========================
// 2. Error Constructors
// ==========================

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Template not found in store",
		Details:   fmt.Sprintf("template: %s", name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateValidationFailedError creates a non-retryable template
// definition error.
func NewTemplateValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateValidationFailed,
		Message:   "Template definition failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecipientSpecInvalidError creates a non-retryable recipient spec error.
func NewRecipientSpecInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecipientSpecInvalid,
		Message:   "Malformed recipient specification",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewChannelUnknownError creates a non-retryable channel error.
func NewChannelUnknownError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelUnknown,
		Message:   "Unknown delivery channel",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecipientResolutionFailedError creates a retryable resolution error.
func NewRecipientResolutionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecipientResolutionFailed,
		Message:   "Recipient resolution failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDirectoryUnavailableError creates a retryable directory lookup error.
func NewDirectoryUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDirectoryUnavailable,
		Message:   "User directory unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStateInvalidError creates a non-retryable lifecycle error.
func NewStateInvalidError(from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStateInvalid,
		Message:   "Invalid notification state transition",
		Details:   fmt.Sprintf("from: %s, to: %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewApprovalRequiredError creates a non-retryable approval gate error.
func NewApprovalRequiredError(notificationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApprovalRequired,
		Message:   "Notification requires approval before dispatch",
		Details:   fmt.Sprintf("notificationId: %s", notificationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationExpiredError creates a non-retryable expiry error.
func NewNotificationExpiredError(notificationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationExpired,
		Message:   "Notification is past its expiry timestamp",
		Details:   fmt.Sprintf("notificationId: %s", notificationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDispatchSendFailedError creates a retryable delivery error.
func NewDispatchSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDispatchSendFailed,
		Message:   "Channel send failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreQueryFailedError creates a retryable persistence error.
func NewStoreQueryFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreQueryFailed,
		Message:   "Store query failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationNotFoundError creates a non-retryable lookup error.
func NewNotificationNotFoundError(id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationNotFound,
		Message:   "Notification not found",
		Details:   fmt.Sprintf("notificationId: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
