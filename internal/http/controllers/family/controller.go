// Package family contiene el controller de /v1/families.
package family

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	"github.com/dropDatabas3/ciciauth/internal/family"
	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/family"
	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
	"github.com/dropDatabas3/ciciauth/internal/http/helpers"
	mw "github.com/dropDatabas3/ciciauth/internal/http/middlewares"
	"github.com/dropDatabas3/ciciauth/internal/metrics"
)

// Controller expone el grafo de permisos familiares.
type Controller struct {
	service *family.Service
	metrics *metrics.Metrics
}

// NewController crea el controller; m puede ser nil.
func NewController(service *family.Service, m *metrics.Metrics) *Controller {
	return &Controller{service: service, metrics: m}
}

// Create maneja POST /v1/families
func (c *Controller) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	g, err := c.service.Create(r.Context(), actor(r), family.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Settings:    req.Settings,
	})
	if err != nil {
		c.fail(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusCreated, "Family group created", map[string]any{"family": dto.ToGroup(g)})
}

// Get maneja GET /v1/families/{groupId}
func (c *Controller) Get(w http.ResponseWriter, r *http.Request) {
	g, err := c.service.Get(r.Context(), actor(r), groupID(r))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "", map[string]any{"family": dto.ToGroup(g)})
}

// Delete maneja DELETE /v1/families/{groupId}
func (c *Controller) Delete(w http.ResponseWriter, r *http.Request) {
	if err := c.service.Delete(r.Context(), actor(r), groupID(r)); err != nil {
		c.fail(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "Family group deleted", nil)
}

// AddMember maneja POST /v1/families/{groupId}/members
func (c *Controller) AddMember(w http.ResponseWriter, r *http.Request) {
	var req dto.AddMemberRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		httperrors.WriteError(w, r, httperrors.Validation("Invalid request data", map[string]string{"userId": "required"}))
		return
	}
	g, err := c.service.AddMember(r.Context(), actor(r), groupID(r), family.AddMemberInput{
		UserID:      strings.TrimSpace(req.UserID),
		Role:        types.FamilyRole(req.Role),
		Permissions: dto.Permissions(req.Permissions),
	})
	if err != nil {
		c.fail(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "Member added", map[string]any{"family": dto.ToGroup(g)})
}

// RemoveMember maneja DELETE /v1/families/{groupId}/members/{userId}
func (c *Controller) RemoveMember(w http.ResponseWriter, r *http.Request) {
	g, err := c.service.RemoveMember(r.Context(), actor(r), groupID(r), chi.URLParam(r, "userId"))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "Member removed", map[string]any{"family": dto.ToGroup(g)})
}

// SetPermissions maneja PUT /v1/families/{groupId}/members/{userId}/permissions
func (c *Controller) SetPermissions(w http.ResponseWriter, r *http.Request) {
	var req dto.SetPermissionsRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	g, err := c.service.SetMemberPermissions(r.Context(), actor(r), groupID(r), chi.URLParam(r, "userId"), dto.Permissions(req.Permissions))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "Permissions updated", map[string]any{"family": dto.ToGroup(g)})
}

// UpdateSettings maneja PATCH /v1/families/{groupId}/settings
func (c *Controller) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req dto.SettingsPatch
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	cur, err := c.service.Get(r.Context(), actor(r), groupID(r))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	g, err := c.service.UpdateSettings(r.Context(), actor(r), groupID(r), req.Apply(cur.Settings))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "Settings updated", map[string]any{"family": dto.ToGroup(g)})
}

// TransferCreator maneja POST /v1/families/{groupId}/transfer
func (c *Controller) TransferCreator(w http.ResponseWriter, r *http.Request) {
	var req dto.TransferRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	g, err := c.service.TransferCreator(r.Context(), actor(r), groupID(r), strings.TrimSpace(req.UserID))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "Creator transferred", map[string]any{"family": dto.ToGroup(g)})
}

// CheckPermission maneja GET /v1/families/{groupId}/permissions/check?permission=&userId=
// userId ausente = el actor. Solo miembros pueden consultar.
func (c *Controller) CheckPermission(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	perm := types.Permission(q.Get("permission"))
	if !perm.IsValid() {
		httperrors.WriteError(w, r, httperrors.Validation("Invalid request data", map[string]string{"permission": "unknown"}))
		return
	}
	target := q.Get("userId")
	if target == "" {
		target = actor(r)
	}
	if _, err := c.service.Get(r.Context(), actor(r), groupID(r)); err != nil {
		c.fail(w, r, err)
		return
	}
	ok, err := c.service.HasPermission(r.Context(), groupID(r), target, perm)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "", dto.PermissionCheck{UserID: target, Permission: string(perm), Allowed: ok})
}

func (c *Controller) fail(w http.ResponseWriter, r *http.Request, err error) {
	var perm *family.PermissionError
	if c.metrics != nil && errors.As(err, &perm) {
		c.metrics.PermissionDeny.WithLabelValues(perm.Required).Inc()
	}
	httperrors.WriteError(w, r, err)
}

func actor(r *http.Request) string   { return mw.GetIdentityID(r.Context()) }
func groupID(r *http.Request) string { return chi.URLParam(r, "groupId") }
