package credentials_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ciciauth/internal/credentials"
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	"github.com/dropDatabas3/ciciauth/internal/security/password"
	"github.com/dropDatabas3/ciciauth/internal/store/adapters/memory"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	ctrl  *credentials.Controller
	repo  repository.IdentityRepository
	clock *fakeClock
	id    string
}

func newFixture(t *testing.T, mutate func(*repository.Identity)) *fixture {
	t.Helper()
	hasher, err := password.NewHasher(password.Fast)
	require.NoError(t, err)
	hash, err := hasher.Hash("Correct-Horse-1")
	require.NoError(t, err)

	repo := memory.New().Identities()
	ident := &repository.Identity{
		ID:            uuid.NewString(),
		Username:      "ana",
		Email:         "ana@example.com",
		PasswordHash:  &hash,
		Status:        types.StatusActive,
		Role:          types.RoleParent,
		EmailVerified: true,
	}
	if mutate != nil {
		mutate(ident)
	}
	require.NoError(t, repo.Create(context.Background(), ident))

	clk := &fakeClock{t: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)}
	ctrl := credentials.NewController(credentials.Deps{
		Identities: repo,
		Hasher:     hasher,
		Policy:     credentials.DefaultLockout,
		Now:        clk.Now,
	})
	return &fixture{ctrl: ctrl, repo: repo, clock: clk, id: ident.ID}
}

func (f *fixture) attempts(t *testing.T) (int, *time.Time) {
	t.Helper()
	i, err := f.repo.GetByID(context.Background(), f.id)
	require.NoError(t, err)
	return i.FailedAttempts, i.LockUntil
}

func TestVerify_Success(t *testing.T) {
	f := newFixture(t, nil)
	ident, err := f.ctrl.Verify(context.Background(), "ANA@example.com", "Correct-Horse-1")
	require.NoError(t, err)
	require.Equal(t, f.id, ident.ID)

	ident, err = f.ctrl.Verify(context.Background(), "ana", "Correct-Horse-1")
	require.NoError(t, err)
	require.Equal(t, f.id, ident.ID)
}

func TestVerify_UnknownLoginLooksLikeWrongSecret(t *testing.T) {
	f := newFixture(t, nil)
	_, errUnknown := f.ctrl.Verify(context.Background(), "nobody@example.com", "whatever")
	_, errWrong := f.ctrl.Verify(context.Background(), "ana@example.com", "whatever")
	require.ErrorIs(t, errUnknown, credentials.ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, credentials.ErrInvalidCredentials)
	require.Equal(t, errUnknown, errWrong)
}

func TestVerify_LockoutLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for k := 0; k < 5; k++ {
		_, err := f.ctrl.Verify(ctx, "ana@example.com", "wrong")
		require.ErrorIs(t, err, credentials.ErrInvalidCredentials)
	}
	n, until := f.attempts(t)
	require.Equal(t, 5, n)
	require.NotNil(t, until)
	require.Equal(t, f.clock.t.Add(2*time.Hour), *until)

	// Secreto correcto mientras está bloqueado.
	_, err := f.ctrl.Verify(ctx, "ana@example.com", "Correct-Horse-1")
	require.ErrorIs(t, err, credentials.ErrAccountLocked)
	var le *credentials.LockedError
	require.True(t, errors.As(err, &le))
	require.Equal(t, 2*time.Hour, le.Remaining)

	// Fallos durante el bloqueo no incrementan.
	_, err = f.ctrl.Verify(ctx, "ana@example.com", "wrong")
	require.ErrorIs(t, err, credentials.ErrAccountLocked)
	n, _ = f.attempts(t)
	require.Equal(t, 5, n)

	f.clock.Advance(2*time.Hour + time.Second)
	ident, err := f.ctrl.Verify(ctx, "ana@example.com", "Correct-Horse-1")
	require.NoError(t, err)
	require.Equal(t, 0, ident.FailedAttempts)
	require.Nil(t, ident.LockUntil)
}

func TestVerify_LapsedLockRestartsCounter(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for k := 0; k < 5; k++ {
		_, _ = f.ctrl.Verify(ctx, "ana", "wrong")
	}
	f.clock.Advance(3 * time.Hour)

	_, err := f.ctrl.Verify(ctx, "ana", "wrong")
	require.ErrorIs(t, err, credentials.ErrInvalidCredentials)
	n, until := f.attempts(t)
	require.Equal(t, 1, n)
	require.Nil(t, until)
}

func TestVerify_SuccessResetsCounter(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for k := 0; k < 3; k++ {
		_, _ = f.ctrl.Verify(ctx, "ana", "wrong")
	}
	_, err := f.ctrl.Verify(ctx, "ana", "Correct-Horse-1")
	require.NoError(t, err)
	n, _ := f.attempts(t)
	require.Equal(t, 0, n)
}

func TestVerify_EmailUnverified(t *testing.T) {
	f := newFixture(t, func(i *repository.Identity) {
		i.EmailVerified = false
		i.Status = types.StatusPendingVerification
	})
	_, err := f.ctrl.Verify(context.Background(), "ana", "Correct-Horse-1")
	require.ErrorIs(t, err, credentials.ErrEmailUnverified)
}

func TestVerify_OAuthOnlyIdentityHasNoSecret(t *testing.T) {
	f := newFixture(t, func(i *repository.Identity) {
		i.PasswordHash = nil
		i.External = &repository.ExternalLink{Provider: "google", ProviderID: "g-1"}
	})
	_, err := f.ctrl.Verify(context.Background(), "ana", "anything")
	require.ErrorIs(t, err, credentials.ErrInvalidCredentials)
}

func TestLockoutPolicy_RegisterFailure(t *testing.T) {
	p := credentials.LockoutPolicy{MaxAttempts: 2, Duration: time.Minute}
	now := time.Unix(1000, 0)
	i := &repository.Identity{}

	require.False(t, p.RegisterFailure(i, now))
	require.True(t, p.RegisterFailure(i, now))
	require.True(t, p.IsLocked(i, now))
	require.False(t, p.RegisterFailure(i, now))
	require.Equal(t, 2, i.FailedAttempts)

	later := now.Add(time.Minute)
	require.False(t, p.IsLocked(i, later))
	p.RegisterFailure(i, later)
	require.Equal(t, 1, i.FailedAttempts)
	require.Nil(t, i.LockUntil)
}
