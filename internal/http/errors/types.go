package errors

import (
	"fmt"
	"maps"
	"net/http"
)

// AppError es el error estándar de la API. Code es el contrato que el
// cliente usa para decidir retry, redirect o validación inline.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	// Err es la causa original; se loguea, nunca se expone.
	Err error
	// Extra se agrega al body (ej: retryAfterSeconds, required).
	Extra map[string]any
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// WithMessage devuelve una copia con otro mensaje.
func (e *AppError) WithMessage(msg string) *AppError {
	c := e.clone()
	c.Message = msg
	return c
}

// WithCause devuelve una copia con la causa.
func (e *AppError) WithCause(err error) *AppError {
	c := e.clone()
	c.Err = err
	return c
}

// With devuelve una copia con un campo extra en el body.
func (e *AppError) With(key string, v any) *AppError {
	c := e.clone()
	if c.Extra == nil {
		c.Extra = map[string]any{}
	}
	c.Extra[key] = v
	return c
}

func (e *AppError) clone() *AppError {
	c := *e
	c.Extra = maps.Clone(e.Extra)
	return &c
}

// =================================================================================
// ERRORES PREDEFINIDOS
// =================================================================================

var (
	// 400
	ErrValidation   = New(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data")
	ErrInvalidJSON  = New(http.StatusBadRequest, "VALIDATION_ERROR", "Request body is not valid JSON")
	ErrBodyTooLarge = New(http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "Request body too large")

	// 401
	ErrInvalidCredentials = New(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid login or password")
	ErrAccountLocked      = New(http.StatusUnauthorized, "ACCOUNT_LOCKED", "Account temporarily locked due to too many failed attempts")
	ErrEmailUnverified    = New(http.StatusUnauthorized, "EMAIL_UNVERIFIED", "Email address not verified")
	ErrTokenExpired       = New(http.StatusUnauthorized, "TOKEN_EXPIRED", "Token expired")
	ErrInvalidToken       = New(http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
	ErrWrongAudience      = New(http.StatusUnauthorized, "WRONG_AUDIENCE", "Token audience mismatch")
	ErrDeviceMismatch     = New(http.StatusUnauthorized, "DEVICE_MISMATCH", "Device not recognized for this session")
	ErrRefreshReused      = New(http.StatusUnauthorized, "REFRESH_REUSED", "Refresh token already used")
	ErrTokenMissing       = New(http.StatusUnauthorized, "TOKEN_MISSING", "Access token required")

	// 403
	ErrPermissionDenied   = New(http.StatusForbidden, "PERMISSION_DENIED", "Insufficient permissions")
	ErrBedtimeRestriction = New(http.StatusForbidden, "BEDTIME_RESTRICTION", "Access restricted during bedtime hours")
	ErrAccountSuspended   = New(http.StatusForbidden, "ACCOUNT_SUSPENDED", "Account suspended")

	// 404 / 405 / 409 / 429
	ErrNotFound          = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrMethodNotAllowed  = New(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	ErrConflict          = New(http.StatusConflict, "CONFLICT", "Resource already exists")
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests")

	// 5xx
	ErrInternal           = New(http.StatusInternalServerError, "INTERNAL", "Internal server error")
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service unavailable")
)
