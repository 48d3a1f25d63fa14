package middlewares

import (
	"net/http"

	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
	"github.com/dropDatabas3/ciciauth/internal/http/helpers"
	"github.com/dropDatabas3/ciciauth/internal/jwt"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
)

// AccessVerifier es lo que RequireAuth necesita del issuer.
type AccessVerifier interface {
	VerifyAccess(token string) (*jwt.AccessClaims, error)
}

// RequireAuth exige un access token válido (Bearer o cookie accessToken).
// Solo verifica firma, tipo y expiración; no consulta el store, así que un
// device revocado sigue pasando hasta que vence su access token.
func RequireAuth(v AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := helpers.BearerToken(r)
			if raw == "" {
				raw = helpers.CookieValue(r, helpers.AccessCookie)
			}
			if raw == "" {
				httperrors.WriteError(w, r, httperrors.ErrTokenMissing)
				return
			}

			claims, err := v.VerifyAccess(raw)
			if err != nil {
				httperrors.WriteError(w, r, err)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			log := logger.From(ctx).With(logger.UserID(claims.IdentityID()), logger.DeviceID(claims.DeviceID))
			ctx = logger.ToContext(ctx, log)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
