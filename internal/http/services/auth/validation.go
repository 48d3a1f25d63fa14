package auth

import (
	"regexp"
	"strings"

	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,30}$`)
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe    = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// Proveedores OAuth aceptados.
const (
	ProviderGoogle = "google"
	ProviderApple  = "apple"
)

func validProvider(p string) bool {
	return p == ProviderGoogle || p == ProviderApple
}

// fieldErrors acumula errores de validación por campo.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) { f[field] = msg }

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return httperrors.Validation("Invalid request data", f)
}

func (s *accountService) checkPassword(pwd string, fe fieldErrors) {
	if ok, reasons := s.deps.Policy.Validate(pwd); !ok {
		fe.add("password", strings.Join(reasons, ","))
	}
}
