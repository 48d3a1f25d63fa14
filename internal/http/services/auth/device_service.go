package auth

import (
	"context"
	"strings"

	"github.com/dropDatabas3/ciciauth/internal/audit"
	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/auth"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
)

type deviceService struct {
	deps Deps
}

func (s *deviceService) List(ctx context.Context, identityID, currentDeviceID string) ([]dto.Device, error) {
	list, err := s.deps.Devices.List(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return dto.ToDevices(list, currentDeviceID), nil
}

func (s *deviceService) Revoke(ctx context.Context, identityID, deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return fieldErrors{"deviceId": "required"}.err()
	}
	if err := s.deps.Devices.Revoke(ctx, identityID, deviceID); err != nil {
		return err
	}
	audit.Log(ctx, audit.DeviceRevoked, logger.UserID(identityID), logger.DeviceID(deviceID))
	return nil
}
