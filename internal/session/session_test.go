package session_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ciciauth/internal/devices"
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	"github.com/dropDatabas3/ciciauth/internal/jwt"
	"github.com/dropDatabas3/ciciauth/internal/session"
	"github.com/dropDatabas3/ciciauth/internal/store/adapters/memory"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	svc   *session.Service
	repo  repository.IdentityRepository
	reg   *devices.Registry
	iss   *jwt.Issuer
	clock *fakeClock
	ident *repository.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	ak, err := jwt.NewDevEd25519("a1")
	require.NoError(t, err)
	rk, err := jwt.NewDevEd25519("r1")
	require.NoError(t, err)
	iss, err := jwt.NewIssuer(ak, rk, jwt.Options{Issuer: "cici-platform", Audience: "cici-users", Now: clk.Now})
	require.NoError(t, err)

	repo := memory.New().Identities()
	h := "hash"
	ident := &repository.Identity{ID: "u1", Username: "ana", Email: "ana@x.io", PasswordHash: &h,
		Status: types.StatusActive, Role: types.RoleUser}
	require.NoError(t, repo.Create(context.Background(), ident))

	reg := devices.NewRegistry(repo, 10, clk.Now)
	svc := session.NewService(session.Deps{
		Identities:     repo,
		Issuer:         iss,
		Devices:        reg,
		ReuseDetection: true,
		Now:            clk.Now,
	})
	return &fixture{svc: svc, repo: repo, reg: reg, iss: iss, clock: clk, ident: ident}
}

func (f *fixture) login(t *testing.T, deviceID string) *jwt.TokenPair {
	t.Helper()
	pair, _, err := f.svc.Establish(context.Background(), f.ident, devices.Descriptor{DeviceID: deviceID, DeviceType: types.DeviceMobile})
	require.NoError(t, err)
	return pair
}

func TestRefresh_Rotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair := f.login(t, "dev-1")

	f.clock.Advance(20 * time.Minute)
	next, ident, err := f.svc.Refresh(ctx, pair.RefreshToken, "dev-1")
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshID, next.RefreshID)
	require.Equal(t, f.clock.t, ident.Devices[0].LastSeen)

	claims, err := f.iss.VerifyAccess(next.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "dev-1", claims.DeviceID)
}

func TestRefresh_AfterLogoutFails(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "dev-1")
	require.NoError(t, f.reg.Revoke(context.Background(), "u1", "dev-1"))

	_, _, err := f.svc.Refresh(context.Background(), pair.RefreshToken, "dev-1")
	require.ErrorIs(t, err, session.ErrDeviceMismatch)
}

func TestRefresh_DeviceMustMatchToken(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "dev-1")
	f.login(t, "dev-2")

	_, _, err := f.svc.Refresh(context.Background(), pair.RefreshToken, "dev-2")
	require.ErrorIs(t, err, session.ErrDeviceMismatch)
}

func TestRefresh_EvictedDeviceFails(t *testing.T) {
	f := newFixture(t)
	first := f.login(t, "dev-0")
	for k := 1; k <= 10; k++ {
		f.clock.Advance(time.Minute)
		f.login(t, fmt.Sprintf("dev-%d", k))
	}
	_, _, err := f.svc.Refresh(context.Background(), first.RefreshToken, "dev-0")
	require.ErrorIs(t, err, session.ErrDeviceMismatch)
}

func TestRefresh_ReuseRevokesDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair := f.login(t, "dev-1")

	f.clock.Advance(time.Minute)
	next, _, err := f.svc.Refresh(ctx, pair.RefreshToken, "dev-1")
	require.NoError(t, err)

	// El refresh viejo vuelve a aparecer: se corta el device.
	_, _, err = f.svc.Refresh(ctx, pair.RefreshToken, "dev-1")
	require.ErrorIs(t, err, session.ErrRefreshReused)

	_, _, err = f.svc.Refresh(ctx, next.RefreshToken, "dev-1")
	require.ErrorIs(t, err, session.ErrDeviceMismatch)
}

func TestRefresh_TokenFromPreviousLoginIsOnlyRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.login(t, "dev-1")

	f.clock.Advance(time.Hour)
	current := f.login(t, "dev-1")

	_, _, err := f.svc.Refresh(ctx, old.RefreshToken, "dev-1")
	require.ErrorIs(t, err, session.ErrRefreshReused)

	_, _, err = f.svc.Refresh(ctx, current.RefreshToken, "dev-1")
	require.NoError(t, err)
}

func TestRefresh_SuspendedIdentity(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "dev-1")
	_, err := f.repo.Update(context.Background(), "u1", func(i *repository.Identity) error {
		i.Status = types.StatusSuspended
		return nil
	})
	require.NoError(t, err)

	_, _, err = f.svc.Refresh(context.Background(), pair.RefreshToken, "dev-1")
	require.ErrorIs(t, err, session.ErrIdentityInactive)
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "dev-1")
	_, _, err := f.svc.Refresh(context.Background(), pair.AccessToken, "dev-1")
	require.ErrorIs(t, err, jwt.ErrInvalidSignature)
}

func TestEstablish_UsesRegistryCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := session.NewService(session.Deps{
		Identities:     f.repo,
		Issuer:         f.iss,
		Devices:        devices.NewRegistry(f.repo, 2, f.clock.Now),
		ReuseDetection: true,
		Now:            f.clock.Now,
	})

	var first *jwt.TokenPair
	for i := 0; i < 3; i++ {
		pair, ident, err := svc.Establish(ctx, f.ident, devices.Descriptor{DeviceID: fmt.Sprintf("d%d", i), DeviceType: types.DeviceWeb})
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("d%d", i), pair.DeviceID)
		require.NotNil(t, ident.LastLoginAt)
		if i == 0 {
			first = pair
		}
		f.clock.Advance(time.Minute)
	}

	stored, err := f.repo.GetByID(ctx, f.ident.ID)
	require.NoError(t, err)
	require.Len(t, stored.Devices, 2)

	_, _, err = svc.Refresh(ctx, first.RefreshToken, "")
	require.ErrorIs(t, err, session.ErrDeviceMismatch)
}
