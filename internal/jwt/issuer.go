// Package jwt firma y verifica los tokens de sesión.
//
// Access y refresh usan claves Ed25519 distintas (KID distinto): un refresh
// presentado como access falla la verificación de firma y viceversa.
// La verificación es pura: no hace I/O y no consulta el store.
package jwt

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
)

// Options configura el Issuer.
type Options struct {
	Issuer     string // "iss", ej: cici-platform
	Audience   string // "aud", ej: cici-users
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Leeway tolera desfasajes de reloj en exp/iat.
	Leeway time.Duration
	// Now permite inyectar reloj en tests. Default: time.Now.
	Now func() time.Time
}

// Issuer emite y verifica pares access/refresh y tokens de propósito.
type Issuer struct {
	access  *KeySet
	refresh *KeySet
	opts    Options
}

// TokenPair es lo que recibe el cliente en login y refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string // "Bearer"
	ExpiresIn        int64  // segundos de vida del access token
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	// RefreshID es el jti del refresh token, persistido en el device.
	RefreshID string
	// DeviceID es el device al que quedan atados ambos tokens.
	DeviceID string
}

func NewIssuer(access, refresh *KeySet, opts Options) (*Issuer, error) {
	if access == nil || refresh == nil {
		return nil, errors.New("jwt: access and refresh keys are required")
	}
	if bytes.Equal(access.Pub, refresh.Pub) || access.KID == refresh.KID {
		return nil, ErrSharedKey
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Issuer{access: access, refresh: refresh, opts: opts}, nil
}

// AccessTTL expone el TTL configurado del access token.
func (i *Issuer) AccessTTL() time.Duration { return i.opts.AccessTTL }

// AccessJWKS publica la clave pública de access (la de refresh nunca se publica).
func (i *Issuer) AccessJWKS() []byte { return i.access.JWKSJSON() }

// IssuePair firma un par para (identidad, device). refreshID vacío = jti nuevo.
func (i *Issuer) IssuePair(ident *repository.Identity, deviceID, refreshID string) (*TokenPair, error) {
	if ident == nil || ident.ID == "" || deviceID == "" {
		return nil, errors.New("jwt: identity and device are required")
	}
	if refreshID == "" {
		refreshID = uuid.NewString()
	}
	now := i.opts.Now().UTC()
	accessExp := now.Add(i.opts.AccessTTL)
	refreshExp := now.Add(i.opts.RefreshTTL)

	ac := AccessClaims{
		Username:         ident.Username,
		Role:             string(ident.Role),
		IsMinor:          ident.IsMinor,
		DeviceID:         deviceID,
		Type:             TypeAccess,
		RegisteredClaims: i.registered(ident.ID, uuid.NewString(), now, accessExp),
	}
	if ident.FamilyGroupID != nil {
		ac.FamilyGroupID = *ident.FamilyGroupID
	}
	access, err := sign(i.access, ac)
	if err != nil {
		return nil, err
	}

	rc := RefreshClaims{
		DeviceID:         deviceID,
		Type:             TypeRefresh,
		RegisteredClaims: i.registered(ident.ID, refreshID, now, refreshExp),
	}
	refresh, err := sign(i.refresh, rc)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(i.opts.AccessTTL / time.Second),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		RefreshID:        refreshID,
		DeviceID:         deviceID,
	}, nil
}

// VerifyAccess valida firma, audiencia, issuer, expiración y tipo.
func (i *Issuer) VerifyAccess(token string) (*AccessClaims, error) {
	var c AccessClaims
	if err := i.parse(token, i.access, &c); err != nil {
		return nil, err
	}
	if c.Type != TypeAccess {
		return nil, ErrWrongTokenType
	}
	if c.Subject == "" || c.DeviceID == "" {
		return nil, ErrInvalidToken
	}
	return &c, nil
}

// VerifyRefresh valida un refresh token contra la clave de refresh.
func (i *Issuer) VerifyRefresh(token string) (*RefreshClaims, error) {
	var c RefreshClaims
	if err := i.parse(token, i.refresh, &c); err != nil {
		return nil, err
	}
	if c.Type != TypeRefresh {
		return nil, ErrWrongTokenType
	}
	if c.Subject == "" || c.DeviceID == "" || c.ID == "" {
		return nil, ErrInvalidToken
	}
	return &c, nil
}

// IssuePurpose firma un token de un solo propósito con la clave de access.
func (i *Issuer) IssuePurpose(purpose, identityID, email, fingerprint string, ttl time.Duration) (string, time.Time, error) {
	now := i.opts.Now().UTC()
	exp := now.Add(ttl)
	tok, err := sign(i.access, PurposeClaims{
		Email:            email,
		Fingerprint:      fingerprint,
		Type:             purpose,
		RegisteredClaims: i.registered(identityID, uuid.NewString(), now, exp),
	})
	return tok, exp, err
}

// VerifyPurpose valida un token de propósito y que su tipo sea el esperado.
func (i *Issuer) VerifyPurpose(token, purpose string) (*PurposeClaims, error) {
	var c PurposeClaims
	if err := i.parse(token, i.access, &c); err != nil {
		return nil, err
	}
	if c.Type != purpose {
		return nil, ErrWrongTokenType
	}
	if c.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &c, nil
}

// DecodeUnsafe lee los claims de un access token SIN verificar firma ni
// expiración. Solo para evaluación offline en el cliente.
func DecodeUnsafe(token string) (*AccessClaims, error) {
	var c AccessClaims
	if _, _, err := jwtv5.NewParser().ParseUnverified(token, &c); err != nil {
		return nil, ErrMalformedToken
	}
	return &c, nil
}

// VerifySignatureOnly chequea la firma EdDSA contra keys (por kid) sin
// validar exp ni aud. keys vacío = ErrInvalidSignature.
func VerifySignatureOnly(token string, keys map[string]ed25519.PublicKey) (*AccessClaims, error) {
	var c AccessClaims
	_, err := jwtv5.ParseWithClaims(token, &c, func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		pub, ok := keys[kid]
		if !ok {
			return nil, ErrInvalidSignature
		}
		return pub, nil
	}, jwtv5.WithValidMethods([]string{"EdDSA"}), jwtv5.WithoutClaimsValidation())
	switch {
	case err == nil:
		return &c, nil
	case errors.Is(err, jwtv5.ErrTokenMalformed):
		return nil, ErrMalformedToken
	default:
		return nil, ErrInvalidSignature
	}
}

func (i *Issuer) registered(sub, jti string, iat, exp time.Time) jwtv5.RegisteredClaims {
	return jwtv5.RegisteredClaims{
		Issuer:    i.opts.Issuer,
		Subject:   sub,
		Audience:  jwtv5.ClaimStrings{i.opts.Audience},
		IssuedAt:  jwtv5.NewNumericDate(iat),
		NotBefore: jwtv5.NewNumericDate(iat),
		ExpiresAt: jwtv5.NewNumericDate(exp),
		ID:        jti,
	}
}

func (i *Issuer) parse(token string, ks *KeySet, claims jwtv5.Claims) error {
	keyfunc := func(t *jwtv5.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != ks.KID {
			return nil, ErrInvalidSignature
		}
		return ks.Pub, nil
	}
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithAudience(i.opts.Audience),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithIssuedAt(),
		jwtv5.WithTimeFunc(i.opts.Now),
		jwtv5.WithLeeway(i.opts.Leeway),
	}
	if i.opts.Issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(i.opts.Issuer))
	}
	if _, err := jwtv5.ParseWithClaims(token, claims, keyfunc, opts...); err != nil {
		return mapParseError(err)
	}
	return nil
}

func sign(ks *KeySet, claims jwtv5.Claims) (string, error) {
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = ks.KID
	tk.Header["typ"] = "JWT"
	return tk.SignedString(ks.Priv)
}
