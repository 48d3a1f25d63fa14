package middlewares

import (
	"net/http"
	"strconv"

	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
	"github.com/dropDatabas3/ciciauth/internal/http/helpers"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
	"github.com/dropDatabas3/ciciauth/internal/rate"
)

func clientIP(r *http.Request, trustProxy bool) string {
	return helpers.ClientIP(r, trustProxy)
}

// RateLimitConfig configura WithRateLimit.
type RateLimitConfig struct {
	Limiter rate.Limiter
	// Bucket separa contadores (login, register, forgot).
	Bucket     string
	TrustProxy bool
	// OnLimited se invoca al rechazar (métricas). Opcional.
	OnLimited func(bucket string)
}

// WithRateLimit limita por IP de cliente y bucket. Si el limiter falla el
// request pasa: el rate limit no debe tirar el login.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	return func(next http.Handler) http.Handler {
		if cfg.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.Bucket + ":" + clientIP(r, cfg.TrustProxy)
			res, err := cfg.Limiter.Allow(r.Context(), key)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Component("rate"), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				secs := int64(res.RetryAfter.Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
				if cfg.OnLimited != nil {
					cfg.OnLimited(cfg.Bucket)
				}
				httperrors.WriteError(w, r, httperrors.ErrRateLimitExceeded.With("retryAfterSeconds", secs))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
