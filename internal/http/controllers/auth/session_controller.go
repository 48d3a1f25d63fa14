package auth

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
	"github.com/dropDatabas3/ciciauth/internal/http/helpers"
	mw "github.com/dropDatabas3/ciciauth/internal/http/middlewares"
	svc "github.com/dropDatabas3/ciciauth/internal/http/services/auth"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
)

// SessionController maneja login, refresh, logout y validación offline.
type SessionController struct {
	service svc.SessionService
	opts    Options
}

func NewSessionController(service svc.SessionService, opts Options) *SessionController {
	return &SessionController{service: service, opts: opts}
}

// Login maneja POST /v1/auth/login
func (c *SessionController) Login(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("SessionController.Login"))

	var req dto.LoginRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	res, err := c.service.Login(r.Context(), req, clientInfo(r, c.opts.TrustProxy))
	if err != nil {
		log.Debug("login failed", logger.Err(err))
		httperrors.WriteError(w, r, err)
		return
	}
	c.writeSession(w, r, "Login successful", res)
}

// OAuthLogin maneja POST /v1/auth/oauth/{provider}
func (c *SessionController) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.OAuthLoginRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	res, err := c.service.OAuthLogin(r.Context(), chi.URLParam(r, "provider"), req, clientInfo(r, c.opts.TrustProxy))
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	c.writeSession(w, r, "OAuth login successful", res)
}

// Refresh maneja POST /v1/auth/refresh-token. El refresh token se toma del
// body, del header X-Refresh-Token o de la cookie, en ese orden.
func (c *SessionController) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		req.RefreshToken = strings.TrimSpace(r.Header.Get("X-Refresh-Token"))
	}
	if req.RefreshToken == "" {
		req.RefreshToken = helpers.CookieValue(r, helpers.RefreshCookie)
	}
	if req.DeviceID == "" {
		req.DeviceID = helpers.DeviceID(r)
	}

	res, err := c.service.Refresh(r.Context(), req)
	if err != nil {
		// Falla cerrada: el cliente web pierde también las cookies.
		if isWeb(r) {
			helpers.ClearSessionCookies(w, c.opts.SecureCookies)
		}
		httperrors.WriteError(w, r, err)
		return
	}
	c.writeSession(w, r, "Token refreshed successfully", res)
}

// Logout maneja POST /v1/auth/logout (desactiva el device actual).
func (c *SessionController) Logout(w http.ResponseWriter, r *http.Request) {
	claims := mw.GetClaims(r.Context())
	if err := c.service.Logout(r.Context(), claims); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	helpers.ClearSessionCookies(w, c.opts.SecureCookies)
	helpers.WriteSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

// LogoutAll maneja POST /v1/auth/logout-all
func (c *SessionController) LogoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := c.service.LogoutAll(r.Context(), mw.GetIdentityID(r.Context()))
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	helpers.ClearSessionCookies(w, c.opts.SecureCookies)
	helpers.WriteSuccess(w, http.StatusOK, "Logged out from all devices", dto.LogoutAllResult{Revoked: n})
}

// ValidateOffline maneja POST /v1/auth/validate-offline. Siempre 200: el
// veredicto va en el body.
func (c *SessionController) ValidateOffline(w http.ResponseWriter, r *http.Request) {
	var req dto.ValidateOfflineRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if req.Token == "" {
		req.Token = helpers.BearerToken(r)
	}
	if req.Token == "" {
		httperrors.WriteError(w, r, httperrors.Validation("Invalid request data", map[string]string{"token": "required"}))
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "", c.service.ValidateOffline(r.Context(), req.Token))
}

func (c *SessionController) writeSession(w http.ResponseWriter, r *http.Request, msg string, res *dto.SessionResult) {
	if isWeb(r) {
		helpers.SetSessionCookies(w, res.Tokens.AccessToken, res.Tokens.RefreshToken,
			res.Tokens.AccessExpiresAt, res.Tokens.RefreshExpiresAt, c.opts.SecureCookies)
	}
	helpers.WriteSuccess(w, http.StatusOK, msg, res)
}
