package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
	"github.com/dropDatabas3/ciciauth/internal/http/helpers"
	mw "github.com/dropDatabas3/ciciauth/internal/http/middlewares"
	svc "github.com/dropDatabas3/ciciauth/internal/http/services/auth"
)

// AccountController maneja verificación, reset de password, perfil y baja.
type AccountController struct {
	service svc.AccountService
	opts    Options
}

func NewAccountController(service svc.AccountService, opts Options) *AccountController {
	return &AccountController{service: service, opts: opts}
}

// VerifyEmail maneja POST /v1/auth/verify-email
func (c *AccountController) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyEmailRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}
	u, err := c.service.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "Email verified successfully", map[string]any{"user": u})
}

// ForgotPassword maneja POST /v1/auth/forgot-password. La respuesta es la
// misma exista o no la cuenta.
func (c *AccountController) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	res, err := c.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	var data any
	if res.ResetToken != "" {
		data = res
	}
	helpers.WriteSuccess(w, http.StatusOK, "If the email exists, a reset link has been sent", data)
}

// ResetPassword maneja POST /v1/auth/reset-password
func (c *AccountController) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if err := c.service.ResetPassword(r.Context(), req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "Password reset successfully", nil)
}

// Me maneja GET /v1/auth/me
func (c *AccountController) Me(w http.ResponseWriter, r *http.Request) {
	u, err := c.service.Me(r.Context(), mw.GetIdentityID(r.Context()))
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "", map[string]any{"user": u})
}

// UpdateProfile maneja PATCH /v1/auth/profile
func (c *AccountController) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req dto.ProfileUpdateRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	u, err := c.service.UpdateProfile(r.Context(), mw.GetIdentityID(r.Context()), req)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	helpers.WriteSuccess(w, http.StatusOK, "Profile updated successfully", map[string]any{"user": u})
}

// DeleteAccount maneja DELETE /v1/auth/account
func (c *AccountController) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := c.service.Delete(r.Context(), mw.GetIdentityID(r.Context())); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	helpers.ClearSessionCookies(w, c.opts.SecureCookies)
	helpers.WriteSuccess(w, http.StatusOK, "Account deleted successfully", nil)
}
