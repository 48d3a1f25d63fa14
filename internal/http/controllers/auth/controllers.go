// Package auth contiene los controllers de /v1/auth.
package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/auth"
	"github.com/dropDatabas3/ciciauth/internal/http/helpers"
	svc "github.com/dropDatabas3/ciciauth/internal/http/services/auth"
)

// Options son los ajustes de transporte compartidos.
type Options struct {
	// SecureCookies marca las cookies de sesión como Secure (HTTPS).
	SecureCookies bool
	TrustProxy    bool
}

// Controllers agrupa todos los controllers del dominio auth.
type Controllers struct {
	Register *RegisterController
	Session  *SessionController
	Account  *AccountController
	Devices  *DevicesController
}

// NewControllers crea el agregador de controllers auth.
func NewControllers(s svc.Services, opts Options) *Controllers {
	return &Controllers{
		Register: NewRegisterController(s.Account),
		Session:  NewSessionController(s.Session, opts),
		Account:  NewAccountController(s.Account, opts),
		Devices:  NewDevicesController(s.Devices),
	}
}

// clientInfo arma el descriptor del cliente desde headers y conexión.
func clientInfo(r *http.Request, trustProxy bool) dto.ClientInfo {
	return dto.ClientInfo{
		DeviceID:   helpers.DeviceID(r),
		DeviceType: helpers.DeviceType(r),
		UserAgent:  r.UserAgent(),
		IP:         helpers.ClientIP(r, trustProxy),
	}
}

// isWeb: los clientes web reciben los tokens también como cookies HttpOnly.
func isWeb(r *http.Request) bool {
	return helpers.DeviceType(r) == "web"
}
