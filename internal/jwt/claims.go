package jwt

import jwtv5 "github.com/golang-jwt/jwt/v5"

// Valores del claim "typ".
const (
	TypeAccess           = "access"
	TypeRefresh          = "refresh"
	PurposeEmailVerify   = "email_verification"
	PurposePasswordReset = "password_reset"
)

// AccessClaims viaja en cada request autenticado. sub = identityId.
type AccessClaims struct {
	Username      string `json:"username"`
	Role          string `json:"role"`
	FamilyGroupID string `json:"familyGroupId,omitempty"`
	IsMinor       bool   `json:"isMinor"`
	DeviceID      string `json:"deviceId"`
	Type          string `json:"typ"`
	jwtv5.RegisteredClaims
}

// IdentityID es el sub del token.
func (c *AccessClaims) IdentityID() string { return c.Subject }

// RefreshClaims solo lleva lo necesario para rotar: identidad, device y jti.
type RefreshClaims struct {
	DeviceID string `json:"deviceId"`
	Type     string `json:"typ"`
	jwtv5.RegisteredClaims
}

// PurposeClaims son tokens de un solo propósito (verificación de email, reset).
type PurposeClaims struct {
	Email string `json:"email"`
	// Fingerprint ata el token al hash de password vigente al emitirlo.
	Fingerprint string `json:"fp,omitempty"`
	Type        string `json:"typ"`
	jwtv5.RegisteredClaims
}
