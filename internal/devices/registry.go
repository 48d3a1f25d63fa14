package devices

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
)

var ErrDeviceNotFound = errors.New("device not found")

// Registry opera la lista de devices de una identidad en el store.
type Registry struct {
	identities repository.IdentityRepository
	max        int
	now        func() time.Time
}

func NewRegistry(identities repository.IdentityRepository, max int, now func() time.Time) *Registry {
	if max <= 0 {
		max = DefaultMax
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{identities: identities, max: max, now: now}
}

// Max retorna el límite configurado.
func (r *Registry) Max() int { return r.max }

// Upsert registra el device (ver Upsert) y actualiza LastLoginAt.
func (r *Registry) Upsert(ctx context.Context, identityID string, d Descriptor, refreshID string) (*repository.Identity, error) {
	now := r.now().UTC()
	return r.identities.Update(ctx, identityID, func(i *repository.Identity) error {
		isNew := i.FindDevice(d.DeviceID) < 0
		before := len(i.Devices)
		i.Devices = Upsert(i.Devices, d, now, refreshID, r.max)
		if isNew && len(i.Devices) == before {
			logger.From(ctx).Info("device evicted: list at capacity",
				logger.UserID(identityID), logger.DeviceID(d.DeviceID), logger.Count(r.max))
		}
		i.LastLoginAt = &now
		return nil
	})
}

// Revoke desactiva un device de la identidad.
func (r *Registry) Revoke(ctx context.Context, identityID, deviceID string) error {
	_, err := r.identities.Update(ctx, identityID, func(i *repository.Identity) error {
		if !Revoke(i.Devices, deviceID) {
			return ErrDeviceNotFound
		}
		return nil
	})
	return err
}

// RevokeAll desactiva todos los devices; retorna cuántos estaban activos.
func (r *Registry) RevokeAll(ctx context.Context, identityID string) (int, error) {
	var n int
	_, err := r.identities.Update(ctx, identityID, func(i *repository.Identity) error {
		n = RevokeAll(i.Devices)
		return nil
	})
	return n, err
}

// List retorna los devices de la identidad.
func (r *Registry) List(ctx context.Context, identityID string) ([]repository.Device, error) {
	i, err := r.identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return i.Devices, nil
}
