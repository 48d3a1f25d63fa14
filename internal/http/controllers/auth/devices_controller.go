package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
	"github.com/dropDatabas3/ciciauth/internal/http/helpers"
	mw "github.com/dropDatabas3/ciciauth/internal/http/middlewares"
	svc "github.com/dropDatabas3/ciciauth/internal/http/services/auth"
)

type DevicesController struct {
	service svc.DeviceService
}

func NewDevicesController(service svc.DeviceService) *DevicesController {
	return &DevicesController{service: service}
}

// List maneja GET /v1/auth/devices
func (c *DevicesController) List(w http.ResponseWriter, r *http.Request) {
	claims := mw.GetClaims(r.Context())
	list, err := c.service.List(r.Context(), claims.IdentityID(), claims.DeviceID)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "", map[string]any{"devices": list})
}

// Revoke maneja DELETE /v1/auth/devices/{deviceId}
func (c *DevicesController) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := c.service.Revoke(r.Context(), mw.GetIdentityID(r.Context()), chi.URLParam(r, "deviceId")); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "Device revoked", nil)
}
