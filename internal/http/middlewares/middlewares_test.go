package middlewares

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	"github.com/dropDatabas3/ciciauth/internal/family"
	"github.com/dropDatabas3/ciciauth/internal/http/helpers"
	"github.com/dropDatabas3/ciciauth/internal/jwt"
	"github.com/dropDatabas3/ciciauth/internal/rate"
)

func newIssuer(t *testing.T, now func() time.Time) *jwt.Issuer {
	t.Helper()
	access, err := jwt.NewDevEd25519("access-mw")
	require.NoError(t, err)
	refresh, err := jwt.NewDevEd25519("refresh-mw")
	require.NoError(t, err)
	iss, err := jwt.NewIssuer(access, refresh, jwt.Options{
		Issuer:     "cici-platform",
		Audience:   "cici-users",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Now:        now,
	})
	require.NoError(t, err)
	return iss
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestChain_Order(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler, mk("a"), mk("b"), mk("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", seen)
}

func TestWithRecover(t *testing.T) {
	h := WithRecover()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "INTERNAL", decode(t, rr)["code"])
}

func TestRequireAuth(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	iss := newIssuer(t, func() time.Time { return now })
	pair, err := iss.IssuePair(&repository.Identity{ID: "u-1", Username: "ana", Role: types.RoleParent}, "dev-1", "")
	require.NoError(t, err)

	var got *jwt.AccessClaims
	h := RequireAuth(iss)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "TOKEN_MISSING", decode(t, rr)["code"])
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, got)
		assert.Equal(t, "u-1", got.IdentityID())
		assert.Equal(t, "dev-1", got.DeviceID)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: helpers.AccessCookie, Value: pair.AccessToken})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("refresh token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("expired", func(t *testing.T) {
		late := newIssuer(t, func() time.Time { return now.Add(time.Hour) })
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		RequireAuth(late)(okHandler).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestWithRateLimit(t *testing.T) {
	limited := 0
	h := WithRateLimit(RateLimitConfig{
		Limiter:   rate.NewMemoryLimiter(2, time.Minute),
		Bucket:    "login",
		OnLimited: func(string) { limited++ },
	})(okHandler)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusNoContent, do().Code)
	assert.Equal(t, http.StatusNoContent, do().Code)
	rr := do()
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decode(t, rr)["code"])
	assert.Equal(t, 1, limited)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (rate.Result, error) {
	return rate.Result{}, errors.New("redis down")
}

func TestWithRateLimit_FailOpen(t *testing.T) {
	h := WithRateLimit(RateLimitConfig{Limiter: failingLimiter{}, Bucket: "login"})(okHandler)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestWithMinorGate(t *testing.T) {
	night := time.Date(2026, 5, 1, 23, 30, 0, 0, time.UTC)
	gate := family.NewGate(time.UTC, func() time.Time { return night })
	settings := &repository.FamilySettings{BedtimeHour: 21, WakeHour: 7}

	// storedMinor es el estado del store, que puede diferir del claim.
	storedMinor := false
	resolved := 0
	denied := 0
	h := WithMinorGate(MinorGateConfig{
		Gate: gate,
		Resolve: func(ctx context.Context, c *jwt.AccessClaims) (family.Subject, *repository.FamilySettings, error) {
			resolved++
			return family.Subject{IsMinor: storedMinor, HasParent: true}, settings, nil
		},
		OnDeny: func() { denied++ },
	})(okHandler)

	serve := func(c *jwt.AccessClaims) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithClaims(req.Context(), c))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := serve(&jwt.AccessClaims{IsMinor: false})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 1, resolved)

	// El token se emitió como adulto pero la identidad ya es menor.
	storedMinor = true
	rr = serve(&jwt.AccessClaims{IsMinor: false})
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, 1, denied)

	rr = serve(&jwt.AccessClaims{IsMinor: true})
	require.Equal(t, http.StatusForbidden, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "BEDTIME_RESTRICTION", body["code"])
	assert.EqualValues(t, 21, body["bedtimeHour"])
	assert.EqualValues(t, 7, body["wakeHour"])
	assert.Equal(t, 2, denied)
}

func TestWithCORS(t *testing.T) {
	h := WithCORS([]string{"https://app.cici.example/"})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.cici.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://app.cici.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders_NoStore(t *testing.T) {
	h := Chain(okHandler, WithSecurityHeaders(), WithNoStore())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Empty(t, rr.Header().Get("Strict-Transport-Security"))
}
