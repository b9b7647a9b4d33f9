// Package errors provides standardized error handling for the dispatch workers and
// their BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Dispatch outcomes and failures
const (
	ErrCodeNoProviderAvailable      ErrorCode = "NO_PROVIDER_AVAILABLE"
	ErrCodeAssignmentConflict       ErrorCode = "ASSIGNMENT_CONFLICT"
	ErrCodeRequestClosed            ErrorCode = "REQUEST_CLOSED"
	ErrCodeNotificationDelivery     ErrorCode = "NOTIFICATION_DELIVERY_FAILED"
	ErrCodeTimerExpired             ErrorCode = "TIMER_EXPIRED"
	ErrCodeDegenerateScore          ErrorCode = "DEGENERATE_SCORE"
	ErrCodeDirectoryUnavailable     ErrorCode = "DIRECTORY_UNAVAILABLE"
	ErrCodeInvalidRequest           ErrorCode = "INVALID_REQUEST"
	ErrCodeRequestNotFound          ErrorCode = "REQUEST_NOT_FOUND"
	ErrCodeProviderNotFound         ErrorCode = "PROVIDER_NOT_FOUND"
	ErrCodeNoPendingRequest         ErrorCode = "NO_PENDING_REQUEST"
	ErrCodeInvalidTransition        ErrorCode = "INVALID_TRANSITION"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeSearchIndexFailed        ErrorCode = "SEARCH_INDEX_FAILED"
	ErrCodeSchemaValidationFailed   ErrorCode = "SCHEMA_VALIDATION_FAILED"
	ErrCodeAgentQueueFailed         ErrorCode = "AGENT_QUEUE_FAILED"
	ErrCodeWorkflowEngine           ErrorCode = "WORKFLOW_ENGINE_ERROR"
)

// Sentinels shared by the domain packages. Wrap them with fmt.Errorf("%w: ...") and
// test with errors.Is; FromError maps them back to a StandardError.
var (
	ErrNoProviderAvailable  = stderrors.New("no provider available")
	ErrAssignmentConflict   = stderrors.New("request already assigned")
	ErrRequestClosed        = stderrors.New("request already closed")
	ErrDirectoryUnavailable = stderrors.New("provider directory unavailable")
	ErrInvalidRequest       = stderrors.New("invalid service request")
	ErrRequestNotFound      = stderrors.New("request not found")
	ErrProviderNotFound     = stderrors.New("provider not found")
	ErrNoPendingRequest     = stderrors.New("no pending request for channel")
	ErrInvalidTransition    = stderrors.New("invalid status transition")
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

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newStandard(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoProviderAvailableError is a soft-terminal outcome: the request is escalated, not retried.
func NewNoProviderAvailableError(requestID string) *StandardError {
	e := newStandard(ErrCodeNoProviderAvailable, "No eligible provider for request",
		fmt.Sprintf("requestId: %s", requestID), false)
	e.Metadata = map[string]interface{}{"requestId": requestID}
	return e
}

// NewAssignmentConflictError describes a lost compare-and-swap on assignment.
func NewAssignmentConflictError(requestID, providerID string) *StandardError {
	return newStandard(ErrCodeAssignmentConflict, "Request already assigned to another provider",
		fmt.Sprintf("requestId: %s, providerId: %s", requestID, providerID), false)
}

func NewRequestClosedError(requestID string) *StandardError {
	return newStandard(ErrCodeRequestClosed, "Request is no longer open",
		fmt.Sprintf("requestId: %s", requestID), false)
}

// NewNotificationDeliveryError is logged per fan-out target; it never aborts a dispatch.
func NewNotificationDeliveryError(channelID string) *StandardError {
	return newStandard(ErrCodeNotificationDelivery, "Notification delivery failed",
		fmt.Sprintf("channelId: %s", channelID), false)
}

func NewTimerExpiredError(requestID string) *StandardError {
	return newStandard(ErrCodeTimerExpired, "No provider accepted before the deadline",
		fmt.Sprintf("requestId: %s", requestID), false)
}

func NewDirectoryUnavailableError(err error) *StandardError {
	return newStandard(ErrCodeDirectoryUnavailable, "Provider directory query failed", err.Error(), true)
}

func NewInvalidRequestError(details string) *StandardError {
	return newStandard(ErrCodeInvalidRequest, "Service request validation failed", details, false)
}

func NewRequestNotFoundError(requestID string) *StandardError {
	return newStandard(ErrCodeRequestNotFound, "Service request not found",
		fmt.Sprintf("requestId: %s", requestID), false)
}

func NewSchemaValidationError(taskType, details string) *StandardError {
	return newStandard(ErrCodeSchemaValidationFailed, "Job variables do not match activity schema",
		fmt.Sprintf("taskType: %s, %s", taskType, details), false)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newStandard(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true)
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return newStandard(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
}

func NewSearchIndexFailedError(operation string, err error) *StandardError {
	return newStandard(ErrCodeSearchIndexFailed, "Dispatch history index error",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
}

func NewAgentQueueFailedError(err error) *StandardError {
	return newStandard(ErrCodeAgentQueueFailed, "Agent queue hand-off failed", err.Error(), true)
}

// NewWorkflowEngineError wraps a failed Zeebe command. Only transport failures are retryable.
func NewWorkflowEngineError(operation string, err error, retryable bool) *StandardError {
	return newStandard(ErrCodeWorkflowEngine, "Workflow engine command failed",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), retryable)
}

// FromError normalizes any error coming out of the dispatch packages.
func FromError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}

	switch {
	case stderrors.Is(err, ErrNoProviderAvailable):
		return newStandard(ErrCodeNoProviderAvailable, "No eligible provider for request", err.Error(), false)
	case stderrors.Is(err, ErrAssignmentConflict):
		return newStandard(ErrCodeAssignmentConflict, "Request already assigned to another provider", err.Error(), false)
	case stderrors.Is(err, ErrRequestClosed):
		return newStandard(ErrCodeRequestClosed, "Request is no longer open", err.Error(), false)
	case stderrors.Is(err, ErrDirectoryUnavailable):
		return NewDirectoryUnavailableError(err)
	case stderrors.Is(err, ErrInvalidRequest):
		return NewInvalidRequestError(err.Error())
	case stderrors.Is(err, ErrRequestNotFound):
		return newStandard(ErrCodeRequestNotFound, "Service request not found", err.Error(), false)
	case stderrors.Is(err, ErrProviderNotFound):
		return newStandard(ErrCodeProviderNotFound, "Provider not found", err.Error(), false)
	case stderrors.Is(err, ErrNoPendingRequest):
		return newStandard(ErrCodeNoPendingRequest, "No pending request for provider channel", err.Error(), false)
	case stderrors.Is(err, ErrInvalidTransition):
		return newStandard(ErrCodeInvalidTransition, "Invalid status transition", err.Error(), false)
	}

	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended job retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeSearchIndexFailed,
		ErrCodeAgentQueueFailed,
		ErrCodeWorkflowEngine:
		return 3

	case ErrCodeDirectoryUnavailable:
		return 1

	default:
		// Dispatch outcomes are terminal for the attempt.
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "PROVIDER") || strings.Contains(codeStr, "DIRECTORY"):
		return "DIRECTORY"
	case strings.Contains(codeStr, "ASSIGNMENT") || strings.Contains(codeStr, "TRANSITION") ||
		strings.Contains(codeStr, "CLOSED") || strings.Contains(codeStr, "TIMER"):
		return "DISPATCH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "WORKFLOW"):
		return "ENGINE"
	case strings.Contains(codeStr, "AGENT"):
		return "CONVERSATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "NOT_FOUND") || strings.Contains(codeStr, "PENDING"):
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}
