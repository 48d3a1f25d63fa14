package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/dropDatabas3/ciciauth/internal/audit"
	"github.com/dropDatabas3/ciciauth/internal/devices"
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/auth"
	"github.com/dropDatabas3/ciciauth/internal/jwt"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
	tokens "github.com/dropDatabas3/ciciauth/internal/security/token"
)

type accountService struct {
	deps Deps
}

// Register crea la identidad. Las cuentas locales nacen pendientes de
// verificación; las registradas vía proveedor externo nacen activas.
func (s *accountService) Register(ctx context.Context, in dto.RegisterRequest) (*dto.RegisterResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.account"), logger.Op("Register"))

	in.Username = strings.TrimSpace(in.Username)
	in.Email = repository.NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.OAuthProvider = strings.ToLower(strings.TrimSpace(in.OAuthProvider))
	in.OAuthID = strings.TrimSpace(in.OAuthID)
	external := in.OAuthProvider != "" || in.OAuthID != ""

	fe := fieldErrors{}
	if !usernameRe.MatchString(in.Username) {
		fe.add("username", "3-30 characters: letters, digits, '_' or '.'")
	}
	if !emailRe.MatchString(in.Email) {
		fe.add("email", "invalid")
	}
	if in.Phone != "" && !phoneRe.MatchString(in.Phone) {
		fe.add("phone", "invalid")
	}
	if external {
		if !validProvider(in.OAuthProvider) {
			fe.add("oauthProvider", "unsupported")
		}
		if in.OAuthID == "" {
			fe.add("oauthId", "required")
		}
	} else if in.Password == "" {
		fe.add("password", "required")
	} else {
		s.checkPassword(in.Password, fe)
	}
	if in.Profile != nil && in.Profile.BirthDate != nil && in.Profile.BirthDate.After(s.deps.Now()) {
		fe.add("birthDate", "must be in the past")
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	now := s.deps.Now().UTC()
	ident := &repository.Identity{
		ID:          uuid.NewString(),
		Username:    in.Username,
		Email:       in.Email,
		Status:      types.StatusPendingVerification,
		Role:        types.RoleUser,
		Permissions: types.DefaultAccountPermissions(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Phone != "" {
		ident.Phone = &in.Phone
	}
	if external {
		ident.External = &repository.ExternalLink{Provider: in.OAuthProvider, ProviderID: in.OAuthID}
		ident.Status = types.StatusActive
		ident.EmailVerified = true
	} else {
		hash, err := s.deps.Hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		ident.PasswordHash = &hash
	}
	applyProfile(&ident.Profile, in.Profile)
	ident.RecomputeMinor(now, s.deps.MinorAge)

	if err := s.deps.Identities.Create(ctx, ident); err != nil {
		return nil, err
	}
	log.Info("identity registered", logger.UserID(ident.ID), logger.Bool("external", external))

	res := &dto.RegisterResult{User: dto.ToUser(ident), NeedsEmailVerification: !ident.EmailVerified}
	if res.NeedsEmailVerification {
		tok, _, err := s.deps.Issuer.IssuePurpose(jwt.PurposeEmailVerify, ident.ID, ident.Email, "", s.deps.VerifyTTL)
		if err != nil {
			return nil, err
		}
		s.notify(ctx, "verify_email", func(ctx context.Context) error {
			return s.deps.Notifier.SendVerification(ctx, ident.Email, ident.Username, tok, s.deps.VerifyTTL)
		})
		if s.deps.EchoTokens {
			res.EmailVerificationToken = tok
		}
	}
	return res, nil
}

func (s *accountService) VerifyEmail(ctx context.Context, token string) (*dto.User, error) {
	c, err := s.deps.Issuer.VerifyPurpose(strings.TrimSpace(token), jwt.PurposeEmailVerify)
	if err != nil {
		return nil, err
	}
	ident, err := s.deps.Identities.Update(ctx, c.Subject, func(i *repository.Identity) error {
		// El email cambió desde que se emitió el token.
		if i.Email != c.Email || i.Status == types.StatusDeleted {
			return jwt.ErrInvalidToken
		}
		i.EmailVerified = true
		if i.Status == types.StatusPendingVerification {
			i.Status = types.StatusActive
		}
		i.UpdatedAt = s.deps.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.From(ctx).Info("email verified", logger.Layer("service"), logger.UserID(ident.ID))
	u := dto.ToUser(ident)
	return &u, nil
}

func (s *accountService) ForgotPassword(ctx context.Context, email string) (*dto.ForgotPasswordResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.account"), logger.Op("ForgotPassword"))

	res := &dto.ForgotPasswordResult{}
	email = repository.NormalizeEmail(email)
	if !emailRe.MatchString(email) {
		return nil, fieldErrors{"email": "invalid"}.err()
	}
	ident, err := s.deps.Identities.GetByEmail(ctx, email)
	if repository.IsNotFound(err) {
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	if ident.Status == types.StatusDeleted || ident.Status == types.StatusSuspended {
		log.Debug("reset requested for unavailable identity", logger.UserID(ident.ID))
		return res, nil
	}

	tok, _, err := s.deps.Issuer.IssuePurpose(jwt.PurposePasswordReset, ident.ID, ident.Email, hashFingerprint(ident), s.deps.ResetTTL)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, "reset_password", func(ctx context.Context) error {
		return s.deps.Notifier.SendPasswordReset(ctx, ident.Email, ident.Username, tok, s.deps.ResetTTL)
	})
	if s.deps.EchoTokens {
		res.ResetToken = tok
	}
	return res, nil
}

// ResetPassword fija el nuevo hash, limpia el bloqueo y cierra todas las
// sesiones. El token queda inutilizable apenas cambia el hash.
func (s *accountService) ResetPassword(ctx context.Context, in dto.ResetPasswordRequest) error {
	c, err := s.deps.Issuer.VerifyPurpose(strings.TrimSpace(in.Token), jwt.PurposePasswordReset)
	if err != nil {
		return err
	}
	fe := fieldErrors{}
	s.checkPassword(in.Password, fe)
	if err := fe.err(); err != nil {
		return err
	}
	hash, err := s.deps.Hasher.Hash(in.Password)
	if err != nil {
		return err
	}

	ident, err := s.deps.Identities.Update(ctx, c.Subject, func(i *repository.Identity) error {
		if i.Status == types.StatusDeleted || i.Email != c.Email || hashFingerprint(i) != c.Fingerprint {
			return jwt.ErrInvalidToken
		}
		i.PasswordHash = &hash
		i.FailedAttempts = 0
		i.LockUntil = nil
		// El link llegó al email: prueba de posesión.
		i.EmailVerified = true
		if i.Status == types.StatusPendingVerification {
			i.Status = types.StatusActive
		}
		devices.RevokeAll(i.Devices)
		i.UpdatedAt = s.deps.Now().UTC()
		return nil
	})
	if err != nil {
		return err
	}
	audit.Log(ctx, audit.PasswordReset, logger.Layer("service"), logger.UserID(ident.ID))
	return nil
}

func (s *accountService) Me(ctx context.Context, identityID string) (*dto.User, error) {
	ident, err := s.deps.Identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if ident.Status == types.StatusDeleted {
		return nil, repository.ErrNotFound
	}
	u := dto.ToUser(ident)
	return &u, nil
}

// UpdateProfile aplica los campos presentes. isMinor se recalcula siempre
// desde birthDate; el cliente no puede fijarlo.
func (s *accountService) UpdateProfile(ctx context.Context, identityID string, in dto.ProfileUpdateRequest) (*dto.User, error) {
	fe := fieldErrors{}
	if in.BirthDate != nil && in.BirthDate.After(s.deps.Now()) {
		fe.add("birthDate", "must be in the past")
	}
	var phone *string
	if in.Phone != nil {
		p := strings.TrimSpace(*in.Phone)
		if p != "" && !phoneRe.MatchString(p) {
			fe.add("phone", "invalid")
		}
		phone = &p
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	now := s.deps.Now().UTC()
	ident, err := s.deps.Identities.Update(ctx, identityID, func(i *repository.Identity) error {
		if i.Status == types.StatusDeleted {
			return repository.ErrNotFound
		}
		applyProfile(&i.Profile, &in.ProfileInput)
		if phone != nil {
			if *phone == "" {
				i.Phone = nil
			} else {
				i.Phone = phone
			}
		}
		i.RecomputeMinor(now, s.deps.MinorAge)
		i.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	u := dto.ToUser(ident)
	return &u, nil
}

// Delete da de baja la cuenta: primero la cascada familiar, después el
// tombstone (status=deleted) y la anonimización de identificadores únicos.
// Los ids se conservan para no romper referencias de grupos y contenido.
func (s *accountService) Delete(ctx context.Context, identityID string) error {
	ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.account"), logger.Op("Delete")))

	ident, err := s.deps.Identities.GetByID(ctx, identityID)
	if err != nil {
		return err
	}
	if ident.Status == types.StatusDeleted {
		return repository.ErrNotFound
	}
	if ident.FamilyGroupID != nil && *ident.FamilyGroupID != "" && s.deps.Families != nil {
		if err := s.deps.Families.DetachIdentity(ctx, ident.ID, *ident.FamilyGroupID); err != nil {
			return err
		}
	}

	now := s.deps.Now().UTC()
	_, err = s.deps.Identities.Update(ctx, identityID, func(i *repository.Identity) error {
		i.Status = types.StatusDeleted
		anonymize(i)
		devices.RevokeAll(i.Devices)
		i.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}
	audit.Log(ctx, audit.AccountDeleted, logger.UserID(identityID))
	return nil
}

// anonymize reescribe los identificadores únicos de una identidad borrada
// para liberar email, username y teléfono.
func anonymize(i *repository.Identity) {
	i.Username = "deleted_" + i.ID
	i.Email = "deleted+" + i.ID + "@invalid"
	i.Phone = nil
	i.PasswordHash = nil
	i.External = nil
	i.Profile = repository.Profile{}
	i.FamilyGroupID = nil
	i.ParentID = nil
	i.FailedAttempts = 0
	i.LockUntil = nil
}

// notify envía un mail sin bloquear el flujo: un fallo del SMTP se loguea
// y se cuenta, no se propaga.
func (s *accountService) notify(ctx context.Context, template string, send func(context.Context) error) {
	if s.deps.Notifier == nil {
		return
	}
	result := "ok"
	if err := send(ctx); err != nil {
		result = "error"
		logger.From(ctx).Warn("email delivery failed", logger.Layer("service"), logger.String("template", template), logger.Err(err))
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.EmailsSent.WithLabelValues(template, result).Inc()
	}
}

func hashFingerprint(i *repository.Identity) string {
	if i.PasswordHash == nil {
		return ""
	}
	return tokens.Fingerprint(*i.PasswordHash)
}

func applyProfile(p *repository.Profile, in *dto.ProfileInput) {
	if in == nil {
		return
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&p.FirstName, in.FirstName)
	set(&p.LastName, in.LastName)
	set(&p.Avatar, in.Avatar)
	set(&p.Bio, in.Bio)
	set(&p.Gender, in.Gender)
	if in.BirthDate != nil {
		bd := in.BirthDate.UTC()
		p.BirthDate = &bd
	}
}
