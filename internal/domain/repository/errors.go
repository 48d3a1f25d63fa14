package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un duplicado (ver ConflictError para el campo).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indica que el documento viola un invariante.
	ErrInvalidInput = errors.New("invalid input")
)

// ConflictError nombra el campo único en conflicto (email, username, phone).
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s", e.Field)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ConflictField extrae el campo de un error de conflicto ("" si no aplica).
func ConflictField(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Field
	}
	return ""
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
