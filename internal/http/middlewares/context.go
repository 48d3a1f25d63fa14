package middlewares

import (
	"context"

	"github.com/dropDatabas3/ciciauth/internal/jwt"
)

type ctxKey string

const (
	ctxClaimsKey    ctxKey = "claims"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithClaims inyecta las claims del access token verificado.
func WithClaims(ctx context.Context, c *jwt.AccessClaims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey, c)
}

// GetClaims retorna nil si el request no pasó por RequireAuth.
func GetClaims(ctx context.Context) *jwt.AccessClaims {
	c, _ := ctx.Value(ctxClaimsKey).(*jwt.AccessClaims)
	return c
}

// GetIdentityID retorna el sub del token o "".
func GetIdentityID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.IdentityID()
	}
	return ""
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetRequestID retorna el request id del contexto.
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}
