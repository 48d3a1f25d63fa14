// Package errors traduce errores de dominio a respuestas HTTP con el body
// {"success":false,"error":<mensaje>,"code":<CODE>,...extra}.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/ciciauth/internal/credentials"
	"github.com/dropDatabas3/ciciauth/internal/devices"
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/family"
	"github.com/dropDatabas3/ciciauth/internal/jwt"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
	"github.com/dropDatabas3/ciciauth/internal/session"
)

// WriteError escribe err como respuesta JSON. Los 5xx se loguean con la causa.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := FromError(err)
	if appErr.HTTPStatus >= 500 && r != nil {
		logger.From(r.Context()).Error("request failed", logger.Layer("http"), logger.Err(err))
	}

	body := make(map[string]any, 3+len(appErr.Extra))
	for k, v := range appErr.Extra {
		body[k] = v
	}
	body["success"] = false
	body["error"] = appErr.Message
	body["code"] = appErr.Code

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(body)
}

// FromError convierte cualquier error en *AppError. Lo desconocido es 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	// credenciales
	var locked *credentials.LockedError
	if stderrors.As(err, &locked) {
		secs := int64(locked.Remaining.Round(time.Second) / time.Second)
		return ErrAccountLocked.WithCause(err).With("retryAfterSeconds", secs)
	}
	switch {
	case stderrors.Is(err, credentials.ErrInvalidCredentials):
		return ErrInvalidCredentials.WithCause(err)
	case stderrors.Is(err, credentials.ErrAccountLocked):
		return ErrAccountLocked.WithCause(err)
	case stderrors.Is(err, credentials.ErrEmailUnverified):
		return ErrEmailUnverified.WithCause(err)
	case stderrors.Is(err, credentials.ErrAccountSuspended):
		return ErrAccountSuspended.WithCause(err)
	}

	// tokens y sesión
	switch {
	case stderrors.Is(err, jwt.ErrExpiredToken):
		return ErrTokenExpired.WithCause(err)
	case stderrors.Is(err, jwt.ErrWrongAudience):
		return ErrWrongAudience.WithCause(err)
	case stderrors.Is(err, jwt.ErrInvalidSignature),
		stderrors.Is(err, jwt.ErrMalformedToken),
		stderrors.Is(err, jwt.ErrWrongTokenType),
		stderrors.Is(err, jwt.ErrInvalidToken):
		return ErrInvalidToken.WithCause(err)
	case stderrors.Is(err, session.ErrDeviceMismatch):
		return ErrDeviceMismatch.WithCause(err)
	case stderrors.Is(err, session.ErrRefreshReused):
		return ErrRefreshReused.WithCause(err)
	case stderrors.Is(err, session.ErrIdentityInactive):
		return ErrInvalidToken.WithMessage("Session is no longer valid").WithCause(err)
	case stderrors.Is(err, devices.ErrDeviceNotFound):
		return ErrNotFound.WithMessage("Device not found").WithCause(err)
	}

	// familia
	var perm *family.PermissionError
	if stderrors.As(err, &perm) {
		return ErrPermissionDenied.WithCause(err).With("required", perm.Required)
	}
	var bed *family.BedtimeError
	if stderrors.As(err, &bed) {
		return ErrBedtimeRestriction.WithCause(err).
			With("bedtimeHour", bed.BedtimeHour).
			With("wakeHour", bed.WakeHour)
	}
	switch {
	case stderrors.Is(err, family.ErrNotCreator):
		return ErrPermissionDenied.WithMessage("Only the family creator can do this").WithCause(err).With("required", "creator")
	case stderrors.Is(err, family.ErrNotMember):
		return ErrNotFound.WithMessage("Member not found").WithCause(err)
	case stderrors.Is(err, family.ErrAlreadyMember), stderrors.Is(err, family.ErrAlreadyInGroup):
		return ErrConflict.WithMessage(err.Error()).WithCause(err)
	case stderrors.Is(err, family.ErrCreatorCannotLeave),
		stderrors.Is(err, family.ErrInvalidRole),
		stderrors.Is(err, family.ErrInvalidPermission),
		stderrors.Is(err, family.ErrTransferTarget),
		stderrors.Is(err, family.ErrInvalidSettings),
		stderrors.Is(err, family.ErrInvalidName):
		return ErrValidation.WithMessage(err.Error()).WithCause(err)
	}

	// store
	var conflict *repository.ConflictError
	if stderrors.As(err, &conflict) {
		return ErrConflict.WithMessage(conflict.Field + " already in use").WithCause(err).With("field", conflict.Field)
	}
	switch {
	case stderrors.Is(err, repository.ErrNotFound):
		return ErrNotFound.WithCause(err)
	case stderrors.Is(err, repository.ErrConflict):
		return ErrConflict.WithCause(err)
	case stderrors.Is(err, repository.ErrInvalidInput):
		return ErrValidation.WithCause(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return ErrServiceUnavailable.WithCause(err)
	}

	return ErrInternal.WithCause(err)
}

// Validation arma un VALIDATION_ERROR con detalle por campo.
func Validation(msg string, fields map[string]string) *AppError {
	e := ErrValidation.WithMessage(msg)
	if len(fields) > 0 {
		e = e.With("fields", fields)
	}
	return e
}
