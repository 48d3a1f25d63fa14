// Package router define las rutas HTTP del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authctrl "github.com/dropDatabas3/ciciauth/internal/http/controllers/auth"
	famctrl "github.com/dropDatabas3/ciciauth/internal/http/controllers/family"
	healthctrl "github.com/dropDatabas3/ciciauth/internal/http/controllers/health"
	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
	mw "github.com/dropDatabas3/ciciauth/internal/http/middlewares"
	"github.com/dropDatabas3/ciciauth/internal/metrics"
	"github.com/dropDatabas3/ciciauth/internal/rate"
)

// Deps contiene todo lo que necesitan las rutas.
type Deps struct {
	Auth   *authctrl.Controllers
	Family *famctrl.Controller
	Health *healthctrl.Controller

	Verifier mw.AccessVerifier
	// JWKS retorna el documento JWKS de access.
	JWKS func() []byte

	MinorGate mw.MinorGateConfig
	Metrics   *metrics.Metrics // opcional

	// Limiters por bucket; nil = sin límite.
	LoginLimiter  rate.Limiter
	ForgotLimiter rate.Limiter

	CORSOrigins []string
	TrustProxy  bool
}

// New arma el handler raíz con la cadena global de middlewares.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(d.TrustProxy),
		mw.WithMetrics(d.Metrics),
		mw.WithSecurityHeaders(),
		mw.WithCORS(d.CORSOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, r, httperrors.ErrNotFound.WithMessage("Route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, r, httperrors.ErrMethodNotAllowed)
	})

	registerSystemRoutes(r, d)
	registerAuthRoutes(r, d)
	registerFamilyRoutes(r, d)
	return r
}

func (d Deps) rateLimit(l rate.Limiter, bucket string) mw.Middleware {
	cfg := mw.RateLimitConfig{Limiter: l, Bucket: bucket, TrustProxy: d.TrustProxy}
	if d.Metrics != nil {
		cfg.OnLimited = func(b string) { d.Metrics.RateLimited.WithLabelValues(b).Inc() }
	}
	return mw.WithRateLimit(cfg)
}

func (d Deps) minorGate() mw.Middleware {
	cfg := d.MinorGate
	if d.Metrics != nil && cfg.OnDeny == nil {
		cfg.OnDeny = d.Metrics.BedtimeDeny.Inc
	}
	return mw.WithMinorGate(cfg)
}
