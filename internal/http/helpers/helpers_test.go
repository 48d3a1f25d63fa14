package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
)

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Equal(t, "", BearerToken(r))
	r.Header.Set("Authorization", "bearer abc.def")
	require.Equal(t, "abc.def", BearerToken(r))
	r.Header.Set("Authorization", "Basic xyz")
	require.Equal(t, "", BearerToken(r))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	require.Equal(t, "10.0.0.1", ClientIP(r, false))
	require.Equal(t, "1.2.3.4", ClientIP(r, true))
}

func TestReadJSON(t *testing.T) {
	var v struct {
		Login string `json:"login"`
	}
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"login":"ana","extra":1}`))
	r.Header.Set("Content-Type", "application/json")
	require.NoError(t, ReadJSON(rec, r, &v))
	require.Equal(t, "ana", v.Login)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{bad`))
	require.ErrorIs(t, ReadJSON(rec, r, &v), httperrors.ErrInvalidJSON)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "text/plain")
	require.Error(t, ReadJSON(rec, r, &v))
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, http.StatusCreated, "ok", map[string]int{"n": 1})
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["success"])
	require.Equal(t, "ok", body["message"])
}
