package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	require.Equal(t, "/", NormalizePath(""))
	require.Equal(t, "/v1/auth/login", NormalizePath("/v1/auth/login?x=1"))
	require.Equal(t, "/v1/families/:param/members/:param",
		NormalizePath("/v1/families/0b6f6a1e-6c1f-4a8e-9c55-1c2d3e4f5a6b/members/42"))
	require.Equal(t, "/v1/auth/devices/:param", NormalizePath("/v1/auth/devices/9f86d081884c7d659a2feaa0c55ad015"))
}

func TestObserveHTTPAndHandler(t *testing.T) {
	m := New()
	m.ObserveHTTP("get", "/healthz", 0, 3*time.Millisecond)
	m.ObserveHTTP("POST", "/v1/auth/login", 401, time.Millisecond)
	m.Logins.WithLabelValues("invalid").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `auth_logins_total{result="invalid"} 1`)
	require.Contains(t, body, `http_requests_total{method="GET",path="/healthz",status="200"} 1`)
	require.Contains(t, body, `http_requests_total{method="POST",path="/v1/auth/login",status="401"} 1`)
}
