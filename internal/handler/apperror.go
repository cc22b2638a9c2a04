package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrUnknownEvent     = &AppError{http.StatusBadRequest, "UNKNOWN_EVENT", "Unrecognized event type"}
	ErrAmountMismatch   = &AppError{http.StatusBadRequest, "AMOUNT_MISMATCH", "Event amount does not match booking total"}

	ErrMissingSignature = &AppError{http.StatusUnauthorized, "MISSING_SIGNATURE", "Webhook signature header required"}
	ErrInvalidSignature = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature is invalid"}
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}

	ErrPaymentNotFound  = &AppError{http.StatusNotFound, "PAYMENT_NOT_FOUND", "No payment matches the supplied identifiers"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}

	ErrRateLimited = &AppError{http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded"}

	ErrDataIntegrity = &AppError{http.StatusInternalServerError, "DATA_INTEGRITY", "Correlation identifiers match more than one payment"}
	ErrInternalError = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}
)
