package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/dropDatabas3/ciciauth/internal/audit"
	"github.com/dropDatabas3/ciciauth/internal/credentials"
	"github.com/dropDatabas3/ciciauth/internal/devices"
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
	"github.com/dropDatabas3/ciciauth/internal/jwt"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
	tokens "github.com/dropDatabas3/ciciauth/internal/security/token"
	"github.com/dropDatabas3/ciciauth/internal/session"
)

type sessionService struct {
	deps Deps
}

func (s *sessionService) Login(ctx context.Context, in dto.LoginRequest, client dto.ClientInfo) (*dto.SessionResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.session"), logger.Op("Login"))

	fe := fieldErrors{}
	if strings.TrimSpace(in.Login) == "" {
		fe.add("login", "required")
	}
	if in.Password == "" {
		fe.add("password", "required")
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	ident, err := s.deps.Credentials.Verify(ctx, in.Login, in.Password)
	if err != nil {
		s.countLogin(err)
		return nil, err
	}
	s.countLogin(nil)

	if in.DeviceID != "" {
		client.DeviceID = in.DeviceID
	}
	res, err := s.establish(ctx, ident, client)
	if err != nil {
		return nil, err
	}
	log.Info("login ok", logger.UserID(ident.ID), logger.DeviceID(res.DeviceID))
	return res, nil
}

// OAuthLogin busca por (provider, oauthId); si no existe vincula por email
// y si tampoco, crea la identidad. El proveedor ya autenticó al usuario.
func (s *sessionService) OAuthLogin(ctx context.Context, provider string, in dto.OAuthLoginRequest, client dto.ClientInfo) (*dto.SessionResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.session"), logger.Op("OAuthLogin"), logger.Provider(provider))

	provider = strings.ToLower(strings.TrimSpace(provider))
	in.OAuthID = strings.TrimSpace(in.OAuthID)
	in.Email = repository.NormalizeEmail(in.Email)

	fe := fieldErrors{}
	if !validProvider(provider) {
		fe.add("provider", "unsupported")
	}
	if in.OAuthID == "" {
		fe.add("oauthId", "required")
	}
	if !emailRe.MatchString(in.Email) {
		fe.add("email", "invalid")
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	ident, isNew, err := s.resolveExternal(ctx, provider, in)
	if err != nil {
		return nil, err
	}
	switch ident.Status {
	case types.StatusSuspended:
		return nil, credentials.ErrAccountSuspended
	case types.StatusDeleted, types.StatusInactive:
		return nil, credentials.ErrInvalidCredentials
	}
	s.countLogin(nil)

	if in.DeviceID != "" {
		client.DeviceID = in.DeviceID
	}
	res, err := s.establish(ctx, ident, client)
	if err != nil {
		return nil, err
	}
	res.IsNewUser = &isNew
	log.Info("oauth login ok", logger.UserID(ident.ID), logger.Bool("new_user", isNew))
	return res, nil
}

func (s *sessionService) resolveExternal(ctx context.Context, provider string, in dto.OAuthLoginRequest) (*repository.Identity, bool, error) {
	ident, err := s.deps.Identities.GetByExternal(ctx, provider, in.OAuthID)
	if err == nil {
		return ident, false, nil
	}
	if !repository.IsNotFound(err) {
		return nil, false, err
	}

	existing, err := s.deps.Identities.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		if existing.External != nil && existing.External.Provider != provider {
			return nil, false, &repository.ConflictError{Field: "email"}
		}
		linked, err := s.deps.Identities.Update(ctx, existing.ID, func(i *repository.Identity) error {
			i.External = &repository.ExternalLink{Provider: provider, ProviderID: in.OAuthID}
			i.EmailVerified = true
			if i.Status == types.StatusPendingVerification {
				i.Status = types.StatusActive
			}
			i.UpdatedAt = s.deps.Now().UTC()
			return nil
		})
		return linked, false, err
	case !repository.IsNotFound(err):
		return nil, false, err
	}

	username := strings.TrimSpace(in.Username)
	if !usernameRe.MatchString(username) {
		username = provider + "_" + shortID(in.OAuthID)
	}
	now := s.deps.Now().UTC()
	ident = &repository.Identity{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         in.Email,
		External:      &repository.ExternalLink{Provider: provider, ProviderID: in.OAuthID},
		Status:        types.StatusActive,
		Role:          types.RoleUser,
		EmailVerified: true,
		Permissions:   types.DefaultAccountPermissions(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	applyProfile(&ident.Profile, in.Profile)
	ident.RecomputeMinor(now, s.deps.MinorAge)

	err = s.deps.Identities.Create(ctx, ident)
	if repository.ConflictField(err) == "username" {
		ident.Username = provider + "_" + shortID(in.OAuthID) + "_" + shortID(uuid.NewString())[:4]
		err = s.deps.Identities.Create(ctx, ident)
	}
	if err != nil {
		return nil, false, err
	}
	return ident, true, nil
}

func (s *sessionService) Refresh(ctx context.Context, in dto.RefreshRequest) (*dto.SessionResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.session"), logger.Op("Refresh"))

	if in.RefreshToken == "" {
		return nil, httperrors.ErrTokenMissing.WithMessage("Refresh token required")
	}
	pair, ident, err := s.deps.Sessions.Refresh(ctx, in.RefreshToken, in.DeviceID)
	if err != nil {
		s.countRefresh(err)
		if errors.Is(err, session.ErrRefreshReused) {
			audit.Log(ctx, audit.RefreshReused, logger.DeviceID(in.DeviceID))
		}
		log.Debug("refresh rejected", logger.Err(err))
		return nil, err
	}
	s.countRefresh(nil)

	return &dto.SessionResult{User: dto.ToUser(ident), Tokens: toTokens(pair), DeviceID: pair.DeviceID}, nil
}

func (s *sessionService) Logout(ctx context.Context, claims *jwt.AccessClaims) error {
	err := s.deps.Devices.Revoke(ctx, claims.IdentityID(), claims.DeviceID)
	if errors.Is(err, devices.ErrDeviceNotFound) {
		return nil
	}
	return err
}

func (s *sessionService) LogoutAll(ctx context.Context, identityID string) (int, error) {
	n, err := s.deps.Devices.RevokeAll(ctx, identityID)
	if err != nil {
		return 0, err
	}
	audit.Log(ctx, audit.LogoutAll, logger.Layer("service"), logger.UserID(identityID), logger.Count(n))
	return n, nil
}

func (s *sessionService) ValidateOffline(ctx context.Context, token string) dto.ValidateOfflineResult {
	r := s.deps.Offline.Validate(token)
	out := dto.ValidateOfflineResult{
		Valid:                   r.Valid,
		Reason:                  string(r.Reason),
		NeedsOnlineVerification: r.NeedsOnlineVerification,
		EmbeddedExpired:         r.EmbeddedExpired,
	}
	if r.Valid && r.Claims != nil {
		out.TokenAgeSeconds = int64(r.TokenAge.Seconds())
		out.User = &dto.OfflineUser{
			ID:            r.Claims.IdentityID(),
			Username:      r.Claims.Username,
			Role:          r.Claims.Role,
			IsMinor:       r.Claims.IsMinor,
			FamilyGroupID: r.Claims.FamilyGroupID,
			DeviceID:      r.Claims.DeviceID,
		}
	}
	return out
}

// ─── helpers ───

func (s *sessionService) establish(ctx context.Context, ident *repository.Identity, client dto.ClientInfo) (*dto.SessionResult, error) {
	deviceID := strings.TrimSpace(client.DeviceID)
	if deviceID == "" {
		deviceID = tokens.DeriveDeviceID(client.UserAgent, client.IP, s.deps.Now())
	}
	pair, updated, err := s.deps.Sessions.Establish(ctx, ident, devices.Descriptor{
		DeviceID:   deviceID,
		DeviceType: types.ParseDeviceType(client.DeviceType),
		UserAgent:  client.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	return &dto.SessionResult{User: dto.ToUser(updated), Tokens: toTokens(pair), DeviceID: deviceID}, nil
}

func (s *sessionService) countLogin(err error) {
	if s.deps.Metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, credentials.ErrAccountLocked):
		result = "locked"
	case errors.Is(err, credentials.ErrEmailUnverified):
		result = "unverified"
	case errors.Is(err, credentials.ErrAccountSuspended):
		result = "suspended"
	default:
		result = "invalid"
	}
	s.deps.Metrics.Logins.WithLabelValues(result).Inc()
}

func (s *sessionService) countRefresh(err error) {
	if s.deps.Metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, session.ErrDeviceMismatch):
		result = "mismatch"
	case errors.Is(err, session.ErrRefreshReused):
		result = "reused"
	default:
		result = "invalid"
	}
	s.deps.Metrics.Refreshes.WithLabelValues(result).Inc()
}

func toTokens(p *jwt.TokenPair) dto.Tokens {
	return dto.Tokens{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		ExpiresIn:        p.ExpiresIn,
		TokenType:        p.TokenType,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

// shortID toma los primeros 8 caracteres alfanuméricos de id.
func shortID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 8 {
				break
			}
		}
	}
	return b.String()
}
