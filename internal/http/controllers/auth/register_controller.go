package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
	"github.com/dropDatabas3/ciciauth/internal/http/helpers"
	svc "github.com/dropDatabas3/ciciauth/internal/http/services/auth"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
)

// RegisterController maneja el alta de cuentas.
type RegisterController struct {
	service svc.AccountService
}

func NewRegisterController(service svc.AccountService) *RegisterController {
	return &RegisterController{service: service}
}

// Register maneja POST /v1/auth/register
func (c *RegisterController) Register(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("RegisterController.Register"))

	var req dto.RegisterRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	res, err := c.service.Register(r.Context(), req)
	if err != nil {
		log.Debug("register failed", logger.Err(err))
		httperrors.WriteError(w, r, err)
		return
	}
	msg := "User registered successfully"
	if res.NeedsEmailVerification {
		msg = "User registered successfully. Please verify your email"
	}
	helpers.WriteSuccess(w, http.StatusCreated, msg, res)
}
