// Package session ata los tokens firmados al registro de devices:
// emite pares al abrir sesión y rota el refresh token validando que el
// device siga activo.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/ciciauth/internal/devices"
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	"github.com/dropDatabas3/ciciauth/internal/jwt"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
)

var (
	// ErrDeviceMismatch: el device no existe, está inactivo o no coincide con el token.
	ErrDeviceMismatch = errors.New("device mismatch")
	// ErrRefreshReused: el refresh ya fue rotado.
	ErrRefreshReused = errors.New("refresh token reused")
	// ErrIdentityInactive: la identidad no puede rotar tokens.
	ErrIdentityInactive = errors.New("identity inactive")
)

type Deps struct {
	Identities repository.IdentityRepository
	Issuer     *jwt.Issuer
	Devices    *devices.Registry
	// ReuseDetection rechaza refresh tokens con jti distinto al último emitido.
	ReuseDetection bool
	Now            func() time.Time
}

type Service struct {
	deps Deps
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Devices == nil {
		d.Devices = devices.NewRegistry(d.Identities, devices.DefaultMax, d.Now)
	}
	return &Service{deps: d}
}

// Establish registra el device y emite el par de tokens.
// Si el registro del device falla, igual se emiten los tokens: el device
// se vuelve a registrar en el próximo login.
func (s *Service) Establish(ctx context.Context, ident *repository.Identity, d devices.Descriptor) (*jwt.TokenPair, *repository.Identity, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("session"), logger.Op("Establish"))

	refreshID := uuid.NewString()
	updated, err := s.deps.Devices.Upsert(ctx, ident.ID, d, refreshID)
	if err != nil {
		log.Warn("device registration failed; issuing tokens anyway",
			logger.UserID(ident.ID), logger.DeviceID(d.DeviceID), logger.Err(err))
		updated = ident
	}

	pair, err := s.deps.Issuer.IssuePair(updated, d.DeviceID, refreshID)
	if err != nil {
		return nil, nil, err
	}
	return pair, updated, nil
}

// Refresh verifica el refresh token, exige que el device siga activo y emite
// un par nuevo. deviceID vacío = el del token.
func (s *Service) Refresh(ctx context.Context, refreshToken, deviceID string) (*jwt.TokenPair, *repository.Identity, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("session"), logger.Op("Refresh"))

	rc, err := s.deps.Issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, nil, err
	}
	if deviceID == "" {
		deviceID = rc.DeviceID
	}
	if deviceID != rc.DeviceID {
		log.Info("refresh rejected: device differs from token", logger.UserID(rc.Subject), logger.DeviceID(deviceID))
		return nil, nil, ErrDeviceMismatch
	}

	newJTI := uuid.NewString()
	now := s.deps.Now().UTC()
	var issuedAt time.Time
	if rc.IssuedAt != nil {
		issuedAt = rc.IssuedAt.Time
	}
	var reused bool

	updated, err := s.deps.Identities.Update(ctx, rc.Subject, func(i *repository.Identity) error {
		if i.Status != types.StatusActive {
			return ErrIdentityInactive
		}
		d, ok := devices.FindActive(i.Devices, deviceID)
		if !ok {
			return ErrDeviceMismatch
		}
		if s.deps.ReuseDetection && d.RefreshJTI != "" && d.RefreshJTI != rc.ID {
			// iat tiene precisión de segundos.
			if !issuedAt.Before(d.RegisteredAt.Truncate(time.Second)) {
				// Token de la sesión vigente ya rotado: se corta el device.
				d.Active = false
				d.RefreshJTI = ""
				reused = true
				return nil
			}
			// Token de una sesión anterior del mismo device: se rechaza sin tocar nada.
			return ErrRefreshReused
		}
		d.LastSeen = now
		d.RefreshJTI = newJTI
		return nil
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, ErrDeviceMismatch
		}
		if errors.Is(err, ErrRefreshReused) {
			log.Info("stale refresh token rejected", logger.UserID(rc.Subject), logger.DeviceID(deviceID))
		}
		return nil, nil, err
	}
	if reused {
		log.Warn("refresh token reuse detected; device revoked", logger.UserID(rc.Subject), logger.DeviceID(deviceID))
		return nil, nil, ErrRefreshReused
	}

	pair, err := s.deps.Issuer.IssuePair(updated, deviceID, newJTI)
	if err != nil {
		return nil, nil, err
	}
	return pair, updated, nil
}
