package authclient

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/auth"
	"github.com/dropDatabas3/ciciauth/internal/offline"
)

// DefaultRememberFor es la ventana "remember me" que extiende cada Touch.
const DefaultRememberFor = 7 * 24 * time.Hour

var (
	ErrNotAuthenticated = errors.New("authclient: not authenticated")
	// ErrSessionExpired: el refresh falló y el bundle se purgó.
	ErrSessionExpired = errors.New("authclient: session expired")
)

// State es el estado de sesión visible para la UI.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
)

func (s State) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// ManagerOptions configura el Manager.
type ManagerOptions struct {
	RememberFor time.Duration
	// DeviceID fijo del dispositivo; vacío = lo deriva el server.
	DeviceID string
	// OfflineKeys (JWKS de access) habilita verificación de firma offline.
	OfflineKeys   map[string]ed25519.PublicKey
	OnStateChange func(State)
	Logger        *zap.Logger
	Now           func() time.Time
}

// Manager reconcilia la sesión local con el servicio.
//
// El marcador remember-me decide si la app arranca autenticada sin ir a la
// red; el exp de los tokens lo decide el server. Un 401 en cualquier llamada
// dispara a lo sumo un refresh; si falla (rechazo o red) se purga el bundle.
type Manager struct {
	client  *Client
	store   BundleStore
	opts    ManagerOptions
	offline *offline.Evaluator
	log     *zap.Logger

	sf singleflight.Group

	mu     sync.RWMutex
	bundle *Bundle
	state  State
}

func NewManager(client *Client, store BundleStore, opts ManagerOptions) *Manager {
	if opts.RememberFor <= 0 {
		opts.RememberFor = DefaultRememberFor
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ev := offline.New(opts.Now)
	ev.Keys = opts.OfflineKeys
	return &Manager{
		client:  client,
		store:   store,
		opts:    opts,
		offline: ev,
		log:     opts.Logger.With(zap.String("component", "authclient")),
	}
}

// State retorna el estado actual.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// User retorna el snapshot de identidad del bundle.
func (m *Manager) User() (dto.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bundle == nil {
		return dto.User{}, false
	}
	return m.bundle.User, true
}

// Restore lee el bundle persistido en el arranque. No hace requests.
func (m *Manager) Restore(ctx context.Context) (State, error) {
	b, err := m.store.Load(ctx)
	if errors.Is(err, ErrNoBundle) {
		m.set(nil)
		return StateUnauthenticated, nil
	}
	if err != nil {
		m.set(nil)
		return StateUnauthenticated, err
	}
	if !m.opts.Now().Before(b.RememberUntil) {
		m.log.Info("remember-me expired; purging session")
		return StateUnauthenticated, m.purge(ctx)
	}
	m.set(b)
	m.log.Debug("session restored", zap.String("user_id", b.User.ID))
	return StateAuthenticated, nil
}

// Touch extiende el remember-me; se llama en cada foreground de la app.
func (m *Manager) Touch(ctx context.Context) error {
	m.mu.Lock()
	if m.bundle == nil {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	m.bundle.RememberUntil = m.opts.Now().Add(m.opts.RememberFor)
	cp := *m.bundle
	m.mu.Unlock()
	return m.store.Save(ctx, &cp)
}

// Login abre sesión y persiste el bundle.
func (m *Manager) Login(ctx context.Context, login, password string) (*dto.User, error) {
	res, err := m.client.Login(ctx, login, password, m.opts.DeviceID)
	if err != nil {
		return nil, err
	}
	now := m.opts.Now()
	b := &Bundle{
		AccessToken:   res.Tokens.AccessToken,
		RefreshToken:  res.Tokens.RefreshToken,
		DeviceID:      res.DeviceID,
		User:          res.User,
		LoginAt:       now,
		RememberUntil: now.Add(m.opts.RememberFor),
	}
	if err := m.store.Save(ctx, b); err != nil {
		return nil, err
	}
	m.set(b)
	return &res.User, nil
}

// Logout revoca el device en el server (best effort) y purga el bundle.
func (m *Manager) Logout(ctx context.Context) error {
	if b := m.current(); b != nil {
		if err := m.client.Logout(ctx, b.AccessToken); err != nil {
			m.log.Warn("server logout failed", zap.Error(err))
		}
	}
	return m.purge(ctx)
}

// Do ejecuta fn con el access token actual. Ante un 401 refresca una vez y
// reintenta; un segundo 401 se retorna tal cual.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context, accessToken string) error) error {
	b := m.current()
	if b == nil {
		return ErrNotAuthenticated
	}
	err := fn(ctx, b.AccessToken)
	if !IsUnauthorized(err) {
		return err
	}
	token, err := m.refresh(ctx, b.AccessToken)
	if err != nil {
		return err
	}
	return fn(ctx, token)
}

// OfflineStatus evalúa el access token local sin red.
func (m *Manager) OfflineStatus() (offline.Result, error) {
	b := m.current()
	if b == nil {
		return offline.Result{}, ErrNotAuthenticated
	}
	return m.offline.Validate(b.AccessToken), nil
}

// refresh rota el par; llamadas concurrentes comparten un único request.
// stale es el access token que falló: si ya cambió, otro caller refrescó.
// Cualquier fallo del refresh (rechazo o red) purga la sesión local.
func (m *Manager) refresh(ctx context.Context, stale string) (string, error) {
	// El request compartido no depende de la cancelación del primer caller;
	// lo acota el timeout del Client.
	ctx = context.WithoutCancel(ctx)
	v, err, _ := m.sf.Do("refresh", func() (any, error) {
		b := m.current()
		if b == nil {
			return "", ErrNotAuthenticated
		}
		if b.AccessToken != stale {
			return b.AccessToken, nil
		}

		res, err := m.client.Refresh(ctx, b.RefreshToken, b.DeviceID)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				m.log.Info("refresh rejected; purging session", zap.String("code", apiErr.Code))
			} else {
				m.log.Warn("refresh failed; purging session", zap.Error(err))
			}
			if perr := m.purge(ctx); perr != nil {
				m.log.Warn("purge failed", zap.Error(perr))
			}
			return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}

		nb := *b
		nb.AccessToken = res.Tokens.AccessToken
		nb.RefreshToken = res.Tokens.RefreshToken
		nb.User = res.User
		if res.DeviceID != "" {
			nb.DeviceID = res.DeviceID
		}
		if err := m.store.Save(ctx, &nb); err != nil {
			return "", err
		}
		m.set(&nb)
		return nb.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) current() *Bundle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bundle == nil {
		return nil
	}
	cp := *m.bundle
	return &cp
}

func (m *Manager) purge(ctx context.Context) error {
	m.set(nil)
	return m.store.Clear(ctx)
}

// set reemplaza el bundle y notifica si cambió el estado.
func (m *Manager) set(b *Bundle) {
	next := StateUnauthenticated
	if b != nil {
		next = StateAuthenticated
	}
	m.mu.Lock()
	m.bundle = b
	changed := m.state != next
	m.state = next
	m.mu.Unlock()
	if changed && m.opts.OnStateChange != nil {
		m.opts.OnStateChange(next)
	}
}
