package models

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorCode represents standardized, machine-readable error codes returned
// to relay callers.
type ErrorCode string

const (
	// Validation errors
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInvalidAddress ErrorCode = "INVALID_ADDRESS"
	ErrorCodeMalformedJSON  ErrorCode = "MALFORMED_JSON"

	// Authentication / rate limiting
	ErrorCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrorCodeAdminNotSet       ErrorCode = "ADMIN_NOT_CONFIGURED"
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Metering errors
	ErrorCodeLimitExceeded     ErrorCode = "LIMIT_EXCEEDED"
	ErrorCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"

	// Decoded on-chain revert kinds
	ErrorCodeTransferNotApproved   ErrorCode = "TRANSFER_NOT_APPROVED"
	ErrorCodeTokenNotFound         ErrorCode = "TOKEN_NOT_FOUND"
	ErrorCodeInvalidReceiver       ErrorCode = "INVALID_RECEIVER"
	ErrorCodeContractOwnerRequired ErrorCode = "CONTRACT_OWNER_REQUIRED"
	ErrorCodeContractNotFound      ErrorCode = "CONTRACT_NOT_FOUND"

	// Infrastructure errors
	ErrorCodeRPCUnavailable    ErrorCode = "RPC_UNAVAILABLE"
	ErrorCodeSubmissionUnknown ErrorCode = "SUBMISSION_UNKNOWN"
	ErrorCodeObjectStoreError  ErrorCode = "OBJECT_STORE_UNAVAILABLE"
	ErrorCodeDatabaseError     ErrorCode = "DATABASE_ERROR"
	ErrorCodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatusCode returns the appropriate HTTP status code for each error kind
func (e ErrorCode) HTTPStatusCode() int {
	switch e {
	case ErrorCodeInvalidRequest, ErrorCodeInvalidAddress, ErrorCodeMalformedJSON, ErrorCodeInvalidReceiver:
		return http.StatusBadRequest
	case ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrorCodeInsufficientFunds:
		return http.StatusPaymentRequired
	case ErrorCodeTransferNotApproved, ErrorCodeContractOwnerRequired, ErrorCodeAdminNotSet:
		return http.StatusForbidden
	case ErrorCodeTokenNotFound, ErrorCodeContractNotFound:
		return http.StatusNotFound
	case ErrorCodeLimitExceeded, ErrorCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorCodeRPCUnavailable:
		return http.StatusBadGateway
	case ErrorCodeObjectStoreError:
		return http.StatusServiceUnavailable
	case ErrorCodeSubmissionUnknown:
		return http.StatusGatewayTimeout
	case ErrorCodeDatabaseError, ErrorCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorDetail represents detailed error information
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// ErrorResponse represents the standardized error response format
type ErrorResponse struct {
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// AppError represents an application error with a machine-readable kind
type AppError struct {
	Code       ErrorCode
	Message    string
	Details    string
	Cause      error
	StatusCode int
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: code.HTTPStatusCode(),
	}
}

// NewAppErrorWithCause creates a new application error with underlying cause
func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: code.HTTPStatusCode(),
	}
}

// NewAppErrorWithDetails creates a new application error with details
func NewAppErrorWithDetails(code ErrorCode, message, details string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: code.HTTPStatusCode(),
	}
}

// RespondError writes the standardized error response for err. Non-AppError
// values are wrapped as INTERNAL_ERROR so nothing leaks untyped.
func RespondError(c *gin.Context, err error) {
	appErr, ok := err.(*AppError)
	if !ok {
		appErr = NewAppErrorWithCause(ErrorCodeInternalError, "Internal server error", err)
	}

	c.JSON(appErr.StatusCode, &ErrorResponse{
		Error: ErrorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
		Timestamp: time.Now().UTC(),
	})
}
