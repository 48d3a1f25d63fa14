// Package auth contiene los servicios de /v1/auth: registro, sesiones,
// verificación de email, reset de password, devices y baja de cuenta.
package auth

import (
	"context"
	"time"

	"github.com/dropDatabas3/ciciauth/internal/credentials"
	"github.com/dropDatabas3/ciciauth/internal/devices"
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/auth"
	"github.com/dropDatabas3/ciciauth/internal/jwt"
	"github.com/dropDatabas3/ciciauth/internal/metrics"
	"github.com/dropDatabas3/ciciauth/internal/offline"
	"github.com/dropDatabas3/ciciauth/internal/security/password"
	"github.com/dropDatabas3/ciciauth/internal/session"
)

// SessionService abre, rota y cierra sesiones.
type SessionService interface {
	Login(ctx context.Context, in dto.LoginRequest, client dto.ClientInfo) (*dto.SessionResult, error)
	OAuthLogin(ctx context.Context, provider string, in dto.OAuthLoginRequest, client dto.ClientInfo) (*dto.SessionResult, error)
	Refresh(ctx context.Context, in dto.RefreshRequest) (*dto.SessionResult, error)
	// Logout desactiva el device de la sesión actual.
	Logout(ctx context.Context, claims *jwt.AccessClaims) error
	LogoutAll(ctx context.Context, identityID string) (int, error)
	ValidateOffline(ctx context.Context, token string) dto.ValidateOfflineResult
}

// AccountService administra el ciclo de vida de la cuenta.
type AccountService interface {
	Register(ctx context.Context, in dto.RegisterRequest) (*dto.RegisterResult, error)
	VerifyEmail(ctx context.Context, token string) (*dto.User, error)
	// ForgotPassword nunca revela si el email existe.
	ForgotPassword(ctx context.Context, email string) (*dto.ForgotPasswordResult, error)
	ResetPassword(ctx context.Context, in dto.ResetPasswordRequest) error
	Me(ctx context.Context, identityID string) (*dto.User, error)
	UpdateProfile(ctx context.Context, identityID string, in dto.ProfileUpdateRequest) (*dto.User, error)
	Delete(ctx context.Context, identityID string) error
}

// DeviceService lista y revoca devices de la identidad autenticada.
type DeviceService interface {
	List(ctx context.Context, identityID, currentDeviceID string) ([]dto.Device, error)
	Revoke(ctx context.Context, identityID, deviceID string) error
}

// FamilyDetacher aplica la cascada familiar al borrar una cuenta.
type FamilyDetacher interface {
	DetachIdentity(ctx context.Context, identityID, groupID string) error
}

// Notifier envía los mails de verificación y reset. Implementado por email.Mailer.
type Notifier interface {
	SendVerification(ctx context.Context, to, username, token string, ttl time.Duration) error
	SendPasswordReset(ctx context.Context, to, username, token string, ttl time.Duration) error
}

// Deps son las dependencias compartidas por los servicios auth.
type Deps struct {
	Identities  repository.IdentityRepository
	Credentials *credentials.Controller
	Sessions    *session.Service
	Devices     *devices.Registry
	Issuer      *jwt.Issuer
	Hasher      *password.Hasher
	Policy      password.Policy
	Offline     *offline.Evaluator
	Families    FamilyDetacher
	Notifier    Notifier         // nil = no se envían mails
	Metrics     *metrics.Metrics // opcional

	VerifyTTL time.Duration
	ResetTTL  time.Duration
	MinorAge  int
	// EchoTokens devuelve los tokens de email en la respuesta (dev/tests).
	EchoTokens bool
	Now        func() time.Time
}

// Services agrupa los servicios del dominio auth.
type Services struct {
	Session SessionService
	Account AccountService
	Devices DeviceService
}

// NewServices crea los servicios aplicando defaults.
func NewServices(d Deps) Services {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.VerifyTTL <= 0 {
		d.VerifyTTL = 24 * time.Hour
	}
	if d.ResetTTL <= 0 {
		d.ResetTTL = time.Hour
	}
	if d.MinorAge <= 0 {
		d.MinorAge = 17
	}
	if d.Offline == nil {
		d.Offline = offline.New(d.Now)
	}
	return Services{
		Session: &sessionService{deps: d},
		Account: &accountService{deps: d},
		Devices: &deviceService{deps: d},
	}
}
