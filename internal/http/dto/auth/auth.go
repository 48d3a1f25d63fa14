// Package auth contiene los DTOs de /v1/auth.
package auth

import "time"

// ProfileInput son los campos de perfil editables por el usuario.
type ProfileInput struct {
	FirstName *string    `json:"firstName,omitempty"`
	LastName  *string    `json:"lastName,omitempty"`
	Avatar    *string    `json:"avatar,omitempty"`
	Bio       *string    `json:"bio,omitempty"`
	Gender    *string    `json:"gender,omitempty"`
	BirthDate *time.Time `json:"birthDate,omitempty"`
}

// RegisterRequest es el body de POST /v1/auth/register.
type RegisterRequest struct {
	Username string        `json:"username"`
	Email    string        `json:"email"`
	Password string        `json:"password,omitempty"`
	Phone    string        `json:"phone,omitempty"`
	Profile  *ProfileInput `json:"profile,omitempty"`
	// Registro vía proveedor externo: la cuenta nace activa y sin password.
	OAuthProvider string `json:"oauthProvider,omitempty"`
	OAuthID       string `json:"oauthId,omitempty"`
}

// RegisterResult es la respuesta de registro.
type RegisterResult struct {
	User                   User   `json:"user"`
	NeedsEmailVerification bool   `json:"needsEmailVerification"`
	EmailVerificationToken string `json:"emailVerificationToken,omitempty"`
}

// LoginRequest: login acepta email o username.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId,omitempty"`
}

// ClientInfo describe el cliente que abre sesión; lo arma el controller.
type ClientInfo struct {
	DeviceID   string
	DeviceType string
	UserAgent  string
	IP         string
}

// OAuthLoginRequest es el body de POST /v1/auth/oauth/{provider}.
type OAuthLoginRequest struct {
	OAuthID  string        `json:"oauthId"`
	Email    string        `json:"email"`
	Username string        `json:"username,omitempty"`
	Profile  *ProfileInput `json:"profile,omitempty"`
	DeviceID string        `json:"deviceId,omitempty"`
}

// Tokens es el par emitido en login y refresh.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	TokenType    string `json:"tokenType"`

	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// SessionResult es la respuesta de login, login OAuth y refresh.
type SessionResult struct {
	User      User   `json:"user"`
	Tokens    Tokens `json:"tokens"`
	DeviceID  string `json:"deviceId"`
	IsNewUser *bool  `json:"isNewUser,omitempty"`
}

// RefreshRequest: el refresh token también puede llegar por header o cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
	DeviceID     string `json:"deviceId,omitempty"`
}

type ValidateOfflineRequest struct {
	Token string `json:"token"`
}

// OfflineUser es el snapshot de identidad tomado de los claims.
type OfflineUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Role          string `json:"role"`
	IsMinor       bool   `json:"isMinor"`
	FamilyGroupID string `json:"familyGroupId,omitempty"`
	DeviceID      string `json:"deviceId"`
}

// ValidateOfflineResult es la respuesta de validate-offline.
type ValidateOfflineResult struct {
	Valid                   bool         `json:"valid"`
	Reason                  string       `json:"reason"`
	User                    *OfflineUser `json:"user,omitempty"`
	NeedsOnlineVerification bool         `json:"needsOnlineVerification"`
	TokenAgeSeconds         int64        `json:"tokenAgeSeconds,omitempty"`
	EmbeddedExpired         bool         `json:"embeddedExpired,omitempty"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPasswordResult solo lleva el token con debug_echo_tokens.
type ForgotPasswordResult struct {
	ResetToken string `json:"resetToken,omitempty"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ProfileUpdateRequest es el body de PATCH /v1/auth/profile.
type ProfileUpdateRequest struct {
	ProfileInput
	Phone *string `json:"phone,omitempty"`
}

// Device es la vista pública de un device registrado.
type Device struct {
	DeviceID     string    `json:"deviceId"`
	DeviceType   string    `json:"deviceType"`
	UserAgent    string    `json:"userAgent,omitempty"`
	Active       bool      `json:"isActive"`
	Current      bool      `json:"current"`
	RegisteredAt time.Time `json:"registeredAt"`
	LastSeen     time.Time `json:"lastSeen"`
}

// LogoutAllResult informa cuántos devices se desactivaron.
type LogoutAllResult struct {
	Revoked int `json:"revoked"`
}
