// Package authclient es el SDK que usan las apps cliente: habla con
// /v1/auth, persiste el bundle de sesión y reconcilia el "remember me"
// local con la expiración real de los tokens.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/auth"
)

// DefaultTimeout aplica a cada llamada individual.
const DefaultTimeout = 10 * time.Second

// APIError es una respuesta de error del servicio.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authclient: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unauthorized reporta si el server rechazó las credenciales del request.
func (e *APIError) Unauthorized() bool { return e.Status == http.StatusUnauthorized }

// IsUnauthorized reporta si err es un 401 del servicio.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// ClientOptions configura el Client.
type ClientOptions struct {
	HTTPClient *http.Client
	// Timeout por llamada. Default: DefaultTimeout.
	Timeout time.Duration
	// DeviceType se envía como X-Device-Type. Default: "mobile" (sin cookies).
	DeviceType string
	UserAgent  string
}

// Client es un cliente HTTP tipado de la API de auth.
type Client struct {
	baseURL string
	http    *http.Client
	opts    ClientOptions
}

func NewClient(baseURL string, opts ClientOptions) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.DeviceType == "" {
		opts.DeviceType = "mobile"
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: opts.HTTPClient, opts: opts}
}

// Login abre sesión con email o username.
func (c *Client) Login(ctx context.Context, login, password, deviceID string) (*dto.SessionResult, error) {
	var out dto.SessionResult
	err := c.do(ctx, http.MethodPost, "/v1/auth/login", "", dto.LoginRequest{Login: login, Password: password, DeviceID: deviceID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rota el par de tokens.
func (c *Client) Refresh(ctx context.Context, refreshToken, deviceID string) (*dto.SessionResult, error) {
	var out dto.SessionResult
	err := c.do(ctx, http.MethodPost, "/v1/auth/refresh-token", "", dto.RefreshRequest{RefreshToken: refreshToken, DeviceID: deviceID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revoca el device actual.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/logout", accessToken, nil, nil)
}

// Me retorna la identidad del token.
func (c *Client) Me(ctx context.Context, accessToken string) (*dto.User, error) {
	var out struct {
		User dto.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/auth/me", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// ValidateOffline pide al server el mismo veredicto que el evaluador local.
func (c *Client) ValidateOffline(ctx context.Context, token string) (*dto.ValidateOfflineResult, error) {
	var out dto.ValidateOfflineResult
	if err := c.do(ctx, http.MethodPost, "/v1/auth/validate-offline", "", dto.ValidateOfflineRequest{Token: token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Do ejecuta un request autenticado arbitrario; data se decodifica en out.
func (c *Client) Do(ctx context.Context, method, path, accessToken string, in, out any) error {
	return c.do(ctx, method, path, accessToken, in, out)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("authclient: encode: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Device-Type", c.opts.DeviceType)
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authclient: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&env); err != nil {
		if res.StatusCode >= 400 {
			return &APIError{Status: res.StatusCode, Message: http.StatusText(res.StatusCode)}
		}
		return fmt.Errorf("authclient: decode %s: %w", path, err)
	}
	if res.StatusCode >= 400 || !env.Success {
		return &APIError{Status: res.StatusCode, Code: env.Code, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("authclient: decode data %s: %w", path, err)
		}
	}
	return nil
}
