package domain

import (
	"errors"
	"fmt"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Error codes that callers branch on.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL_ERROR"
	CodeForbidden         = "FORBIDDEN"
	CodeSoldOut           = "SOLD_OUT"
	CodePaymentPending    = "PAYMENT_PENDING"
	CodePaymentFailed     = "PAYMENT_FAILED"
	CodeUserLimit         = "USER_LIMIT_REACHED"
	CodeCampaignClosed    = "CAMPAIGN_CLOSED"
	CodeTransactionFailed = "TRANSACTION_FAILED"
)

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}

// Checkout outcomes.

// ErrSoldOut is returned when a purchase would exceed the campaign's ticket cap.
func ErrSoldOut() *AppError {
	return &AppError{Code: CodeSoldOut, Message: "campaign is sold out", Status: 409}
}

// ErrPaymentPending means the provider has not confirmed payment yet. Callers poll and retry.
func ErrPaymentPending(msg string) *AppError {
	return &AppError{Code: CodePaymentPending, Message: msg, Status: 202}
}

// ErrPaymentFailed is terminal: the intent will never be confirmed.
func ErrPaymentFailed(reason string) *AppError {
	return &AppError{Code: CodePaymentFailed, Message: fmt.Sprintf("payment failed: %s", reason), Status: 402}
}

func ErrUserLimit(limit int) *AppError {
	return &AppError{Code: CodeUserLimit, Message: fmt.Sprintf("per-user limit of %d tickets reached", limit), Status: 409}
}

func ErrCampaignClosed(status CampaignStatus) *AppError {
	return &AppError{Code: CodeCampaignClosed, Message: fmt.Sprintf("campaign is not open for entries (status %s)", status), Status: 409}
}

// ErrTransactionFailed wraps a transient persistence failure. Safe to retry.
func ErrTransactionFailed(cause error) *AppError {
	return &AppError{Code: CodeTransactionFailed, Message: "transaction failed, retry later", Status: 503, Cause: cause}
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
