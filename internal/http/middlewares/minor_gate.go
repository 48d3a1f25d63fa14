package middlewares

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/family"
	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
	"github.com/dropDatabas3/ciciauth/internal/jwt"
)

// SubjectResolver carga el estado vigente de la identidad y la configuración
// de su grupo. settings nil = sin grupo.
type SubjectResolver func(ctx context.Context, c *jwt.AccessClaims) (family.Subject, *repository.FamilySettings, error)

type MinorGateConfig struct {
	Gate    *family.Gate
	Resolve SubjectResolver
	// OnDeny se invoca al bloquear por horario (métricas). Opcional.
	OnDeny func()
}

// WithMinorGate bloquea a menores supervisados durante la ventana de bedtime
// de su grupo. Debe ir después de RequireAuth. La condición de menor sale del
// store, no del claim: un cambio de birthDate aplica sin esperar al refresh.
func WithMinorGate(cfg MinorGateConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil || cfg.Gate == nil || cfg.Resolve == nil {
				next.ServeHTTP(w, r)
				return
			}

			subject, settings, err := cfg.Resolve(r.Context(), claims)
			if err != nil {
				httperrors.WriteError(w, r, err)
				return
			}
			if err := cfg.Gate.Check(subject, settings); err != nil {
				if cfg.OnDeny != nil {
					cfg.OnDeny()
				}
				httperrors.WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
