package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ciciauth/internal/app"
	"github.com/dropDatabas3/ciciauth/internal/config"
	"github.com/dropDatabas3/ciciauth/internal/security/password"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type user struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Role          string `json:"role"`
	IsMinor       bool   `json:"isMinor"`
	EmailVerified bool   `json:"emailVerified"`
	FamilyGroupID string `json:"familyGroupId"`
}

type registered struct {
	User                   user   `json:"user"`
	NeedsEmailVerification bool   `json:"needsEmailVerification"`
	EmailVerificationToken string `json:"emailVerificationToken"`
}

type sessionData struct {
	User   user `json:"user"`
	Tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int64  `json:"expiresIn"`
	} `json:"tokens"`
	DeviceID string `json:"deviceId"`
}

type familyData struct {
	Family struct {
		ID      string `json:"id"`
		Members []struct {
			UserID string `json:"userId"`
			Role   string `json:"role"`
		} `json:"members"`
	} `json:"family"`
}

type harness struct {
	t     *testing.T
	srv   *httptest.Server
	clock *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Email.DebugEchoTokens = true
	cfg.Family.Timezone = "UTC"
	require.NoError(t, cfg.Validate())

	clk := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	fast := password.Fast
	c, err := app.Build(context.Background(), cfg, app.Options{Now: clk.Now, PasswordParams: &fast})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	srv := httptest.NewServer(c.Handler)
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, clock: clk}
}

// call hace un request JSON como cliente mobile (sin cookies).
func (h *harness) call(method, path, token string, body any, out any) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-Type", "mobile")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := h.srv.Client().Do(req)
	require.NoError(h.t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

func (h *harness) signup(username, email string, birth *time.Time) user {
	h.t.Helper()
	body := map[string]any{"username": username, "email": email, "password": "Sup3r-Secret-9"}
	if birth != nil {
		body["profile"] = map[string]any{"birthDate": birth.Format(time.RFC3339)}
	}
	var reg envelope[registered]
	res := h.call(http.MethodPost, "/v1/auth/register", "", body, &reg)
	require.Equal(h.t, http.StatusCreated, res.StatusCode)
	require.True(h.t, reg.Data.NeedsEmailVerification)
	require.NotEmpty(h.t, reg.Data.EmailVerificationToken)

	var verified envelope[map[string]user]
	res = h.call(http.MethodPost, "/v1/auth/verify-email", "", map[string]string{"token": reg.Data.EmailVerificationToken}, &verified)
	require.Equal(h.t, http.StatusOK, res.StatusCode)
	require.True(h.t, verified.Data["user"].EmailVerified)
	return verified.Data["user"]
}

func (h *harness) login(loginName string) sessionData {
	h.t.Helper()
	var out envelope[sessionData]
	res := h.call(http.MethodPost, "/v1/auth/login", "", map[string]string{"login": loginName, "password": "Sup3r-Secret-9"}, &out)
	require.Equal(h.t, http.StatusOK, res.StatusCode, out.Error)
	return out.Data
}

func TestApp_SessionLifecycle(t *testing.T) {
	h := newHarness(t)

	// Pendiente de verificación: el login se rechaza.
	var reg envelope[registered]
	res := h.call(http.MethodPost, "/v1/auth/register", "", map[string]any{
		"username": "ana_parent", "email": "ana@example.com", "password": "Sup3r-Secret-9",
	}, &reg)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "pending_verification", reg.Data.User.Status)

	var denied envelope[any]
	res = h.call(http.MethodPost, "/v1/auth/login", "", map[string]string{"login": "ana_parent", "password": "Sup3r-Secret-9"}, &denied)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "EMAIL_UNVERIFIED", denied.Code)

	res = h.call(http.MethodPost, "/v1/auth/verify-email", "", map[string]string{"token": reg.Data.EmailVerificationToken}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	sess := h.login("ana@example.com")
	require.NotEmpty(t, sess.Tokens.AccessToken)
	require.NotEmpty(t, sess.DeviceID)

	var me envelope[map[string]user]
	res = h.call(http.MethodGet, "/v1/auth/me", sess.Tokens.AccessToken, nil, &me)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, reg.Data.User.ID, me.Data["user"].ID)
	assert.Equal(t, "active", me.Data["user"].Status)

	// Rotación: el refresh viejo queda inutilizable.
	h.clock.Set(h.clock.Now().Add(time.Minute))
	var rotated envelope[sessionData]
	res = h.call(http.MethodPost, "/v1/auth/refresh-token", "", map[string]string{"refreshToken": sess.Tokens.RefreshToken}, &rotated)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEqual(t, sess.Tokens.RefreshToken, rotated.Data.Tokens.RefreshToken)
	assert.Equal(t, sess.DeviceID, rotated.Data.DeviceID)

	res = h.call(http.MethodPost, "/v1/auth/refresh-token", "", map[string]string{"refreshToken": sess.Tokens.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// Logout revoca el device: el refresh rotado tampoco sirve.
	res = h.call(http.MethodPost, "/v1/auth/logout", rotated.Data.Tokens.AccessToken, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res = h.call(http.MethodPost, "/v1/auth/refresh-token", "", map[string]string{"refreshToken": rotated.Data.Tokens.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestApp_WebLoginSetsCookies(t *testing.T) {
	h := newHarness(t)
	h.signup("web_user", "web@example.com", nil)

	b, _ := json.Marshal(map[string]string{"login": "web_user", "password": "Sup3r-Secret-9"})
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/v1/auth/login", bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	cookies := map[string]*http.Cookie{}
	for _, c := range res.Cookies() {
		cookies[c.Name] = c
	}
	require.Contains(t, cookies, "accessToken")
	require.Contains(t, cookies, "refreshToken")
	assert.True(t, cookies["accessToken"].HttpOnly)
	assert.Equal(t, "/v1/auth", cookies["refreshToken"].Path)

	// La cookie sola alcanza para rutas autenticadas.
	req, err = http.NewRequest(http.MethodGet, h.srv.URL+"/v1/auth/me", nil)
	require.NoError(t, err)
	req.AddCookie(cookies["accessToken"])
	res, err = h.srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestApp_FamilyBedtime(t *testing.T) {
	h := newHarness(t)
	h.signup("parent_one", "parent@example.com", nil)
	birth := time.Date(2016, 5, 1, 0, 0, 0, 0, time.UTC)
	kid := h.signup("kid_one", "kid@example.com", &birth)
	require.True(t, kid.IsMinor)

	parent := h.login("parent_one")
	var created envelope[familyData]
	res := h.call(http.MethodPost, "/v1/families", parent.Tokens.AccessToken, map[string]any{"name": "The Ones"}, &created)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	gid := created.Data.Family.ID
	require.NotEmpty(t, gid)

	res = h.call(http.MethodPost, "/v1/families/"+gid+"/members", parent.Tokens.AccessToken, map[string]any{"userId": kid.ID, "role": "child"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	// Mediodía: el menor puede ver su grupo.
	kidSess := h.login("kid_one")
	var fam envelope[familyData]
	res = h.call(http.MethodGet, "/v1/families/"+gid, kidSess.Tokens.AccessToken, nil, &fam)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, fam.Data.Family.Members, 2)

	// Crear el grupo promovió al creador de user a parent.
	relogged := h.login("parent_one")
	assert.Equal(t, "parent", relogged.User.Role)
	assert.Equal(t, gid, relogged.User.FamilyGroupID)

	// 22:00 cae dentro de la ventana 21..6 por defecto.
	h.clock.Set(time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC))
	kidSess = h.login("kid_one")
	var blocked envelope[any]
	res = h.call(http.MethodGet, "/v1/families/"+gid, kidSess.Tokens.AccessToken, nil, &blocked)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "BEDTIME_RESTRICTION", blocked.Code)

	// Los adultos no tienen restricción horaria.
	parent = h.login("parent_one")
	res = h.call(http.MethodGet, "/v1/families/"+gid, parent.Tokens.AccessToken, nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestApp_SystemRoutes(t *testing.T) {
	h := newHarness(t)

	res := h.call(http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var ready map[string]any
	res = h.call(http.MethodGet, "/readyz", "", nil, &ready)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
		} `json:"keys"`
	}
	res = h.call(http.MethodGet, "/.well-known/jwks.json", "", nil, &jwks)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "access-1", jwks.Keys[0].Kid)
	assert.Equal(t, "OKP", jwks.Keys[0].Kty)

	res = h.call(http.MethodGet, "/metrics", "", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var missing envelope[any]
	res = h.call(http.MethodGet, "/nope", "", nil, &missing)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.False(t, missing.Success)
}
