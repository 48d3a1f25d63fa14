package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ciciauth/internal/cache"
	"github.com/dropDatabas3/ciciauth/internal/credentials"
	"github.com/dropDatabas3/ciciauth/internal/devices"
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	"github.com/dropDatabas3/ciciauth/internal/family"
	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/ciciauth/internal/http/errors"
	"github.com/dropDatabas3/ciciauth/internal/http/services/auth"
	"github.com/dropDatabas3/ciciauth/internal/jwt"
	"github.com/dropDatabas3/ciciauth/internal/offline"
	"github.com/dropDatabas3/ciciauth/internal/security/password"
	"github.com/dropDatabas3/ciciauth/internal/session"
	"github.com/dropDatabas3/ciciauth/internal/store/adapters/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	to, kind, token string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *captureNotifier) SendVerification(_ context.Context, to, _, token string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{to: to, kind: "verify", token: token})
	return nil
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, to, _, token string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{to: to, kind: "reset", token: token})
	return nil
}

type fixture struct {
	svc        auth.Services
	identities repository.IdentityRepository
	families   *family.Service
	issuer     *jwt.Issuer
	clock      *fakeClock
	mail       *captureNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)}
	conn := memory.New()

	ak, err := jwt.NewDevEd25519("access-svc")
	require.NoError(t, err)
	rk, err := jwt.NewDevEd25519("refresh-svc")
	require.NoError(t, err)
	iss, err := jwt.NewIssuer(ak, rk, jwt.Options{Issuer: "cici-platform", Audience: "cici-users", Now: clk.Now})
	require.NoError(t, err)

	hasher, err := password.NewHasher(password.Fast)
	require.NoError(t, err)

	fam := family.NewService(family.Deps{
		Families:   conn.Families(),
		Identities: conn.Identities(),
		Cache:      cache.NewMemory(time.Minute),
		Now:        clk.Now,
	})
	mail := &captureNotifier{}

	svc := auth.NewServices(auth.Deps{
		Identities: conn.Identities(),
		Credentials: credentials.NewController(credentials.Deps{
			Identities: conn.Identities(),
			Hasher:     hasher,
			Policy:     credentials.DefaultLockout,
			Now:        clk.Now,
		}),
		Sessions: session.NewService(session.Deps{
			Identities:     conn.Identities(),
			Issuer:         iss,
			Devices:        devices.NewRegistry(conn.Identities(), devices.DefaultMax, clk.Now),
			ReuseDetection: true,
			Now:            clk.Now,
		}),
		Devices:    devices.NewRegistry(conn.Identities(), devices.DefaultMax, clk.Now),
		Issuer:     iss,
		Hasher:     hasher,
		Policy:     password.Policy{MinLength: 8, RequireDigit: true},
		Offline:    offline.New(clk.Now),
		Families:   fam,
		Notifier:   mail,
		EchoTokens: true,
		Now:        clk.Now,
	})
	return &fixture{svc: svc, identities: conn.Identities(), families: fam, issuer: iss, clock: clk, mail: mail}
}

var ctx = context.Background()

func web(deviceID string) dto.ClientInfo {
	return dto.ClientInfo{DeviceID: deviceID, DeviceType: "web", UserAgent: "test", IP: "10.0.0.1"}
}

// registerVerified registra una cuenta local y verifica el email.
func (f *fixture) registerVerified(t *testing.T, username, pwd string) *dto.User {
	t.Helper()
	res, err := f.svc.Account.Register(ctx, dto.RegisterRequest{Username: username, Email: username + "@cici.test", Password: pwd})
	require.NoError(t, err)
	u, err := f.svc.Account.VerifyEmail(ctx, res.EmailVerificationToken)
	require.NoError(t, err)
	return u
}

func code(err error) string { return httperrors.FromError(err).Code }

func TestRegister_LocalAccountPendingVerification(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Account.Register(ctx, dto.RegisterRequest{
		Username: "alice",
		Email:    "  Alice@Cici.TEST ",
		Password: "s3cretpass",
	})
	require.NoError(t, err)
	assert.True(t, res.NeedsEmailVerification)
	assert.NotEmpty(t, res.EmailVerificationToken)
	assert.Equal(t, "alice@cici.test", res.User.Email)
	assert.Equal(t, "pending_verification", res.User.Status)
	assert.ElementsMatch(t, types.DefaultAccountPermissions(), res.User.Permissions)

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "verify", f.mail.sent[0].kind)
	assert.Equal(t, res.EmailVerificationToken, f.mail.sent[0].token)

	_, err = f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "s3cretpass"}, web("d1"))
	assert.Equal(t, "EMAIL_UNVERIFIED", code(err))

	u, err := f.svc.Account.VerifyEmail(ctx, res.EmailVerificationToken)
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
	assert.Equal(t, "active", u.Status)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name  string
		in    dto.RegisterRequest
		field string
	}{
		{"short username", dto.RegisterRequest{Username: "al", Email: "a@b.io", Password: "s3cretpass"}, "username"},
		{"bad email", dto.RegisterRequest{Username: "alice", Email: "nope", Password: "s3cretpass"}, "email"},
		{"weak password", dto.RegisterRequest{Username: "alice", Email: "a@b.io", Password: "short"}, "password"},
		{"missing password", dto.RegisterRequest{Username: "alice", Email: "a@b.io"}, "password"},
		{"bad provider", dto.RegisterRequest{Username: "alice", Email: "a@b.io", OAuthProvider: "myspace", OAuthID: "1"}, "oauthProvider"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Account.Register(ctx, tc.in)
			appErr := httperrors.FromError(err)
			require.Equal(t, "VALIDATION_ERROR", appErr.Code)
			fields, ok := appErr.Extra["fields"].(map[string]string)
			require.True(t, ok)
			assert.Contains(t, fields, tc.field)
		})
	}
}

func TestRegister_DuplicateEmailIsConflict(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "alice", "s3cretpass")

	_, err := f.svc.Account.Register(ctx, dto.RegisterRequest{Username: "alice2", Email: "ALICE@cici.test", Password: "s3cretpass"})
	appErr := httperrors.FromError(err)
	assert.Equal(t, "CONFLICT", appErr.Code)
	assert.Equal(t, "email", appErr.Extra["field"])
}

func TestRegister_OAuthStartsActive(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Account.Register(ctx, dto.RegisterRequest{
		Username: "bob", Email: "bob@cici.test", OAuthProvider: "google", OAuthID: "g-123",
	})
	require.NoError(t, err)
	assert.False(t, res.NeedsEmailVerification)
	assert.Empty(t, res.EmailVerificationToken)
	assert.Equal(t, "active", res.User.Status)
	assert.Equal(t, "google", res.User.OAuthProvider)
	assert.Empty(t, f.mail.sent)
}

func TestLogin_LockoutScenario(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "alice", "s3cretpass")

	for i := 0; i < 5; i++ {
		_, err := f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "wrong-pass1"}, web("d1"))
		require.Error(t, err)
	}

	_, err := f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "s3cretpass"}, web("d1"))
	appErr := httperrors.FromError(err)
	require.Equal(t, "ACCOUNT_LOCKED", appErr.Code)
	assert.NotZero(t, appErr.Extra["retryAfterSeconds"])

	f.clock.Advance(2*time.Hour + time.Second)
	res, err := f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "s3cretpass"}, web("d1"))
	require.NoError(t, err)
	assert.Equal(t, "d1", res.DeviceID)

	ident, err := f.identities.GetByLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, ident.FailedAttempts)
	assert.Nil(t, ident.LockUntil)
}

func TestLogin_UnknownAndWrongLookAlike(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "alice", "s3cretpass")

	_, err1 := f.svc.Session.Login(ctx, dto.LoginRequest{Login: "ghost", Password: "s3cretpass"}, web("d1"))
	_, err2 := f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "nope-nope1"}, web("d1"))
	assert.Equal(t, "INVALID_CREDENTIALS", code(err1))
	assert.Equal(t, code(err1), code(err2))
	assert.Equal(t, httperrors.FromError(err1).Message, httperrors.FromError(err2).Message)
}

func TestLogin_DerivesDeviceIDWhenMissing(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "alice", "s3cretpass")

	res, err := f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice@cici.test", Password: "s3cretpass"}, web(""))
	require.NoError(t, err)
	assert.Len(t, res.DeviceID, 32)

	claims, err := f.issuer.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.DeviceID, claims.DeviceID)
	assert.Equal(t, res.User.ID, claims.IdentityID())
}

func TestLogin_EleventhDeviceEvictsLeastRecent(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "alice", "s3cretpass")

	var first *dto.SessionResult
	for i := 0; i < 11; i++ {
		res, err := f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "s3cretpass"}, web(fmt.Sprintf("dev-%02d", i)))
		require.NoError(t, err)
		if i == 0 {
			first = res
		}
		f.clock.Advance(time.Minute)
	}

	_, err := f.svc.Session.Refresh(ctx, dto.RefreshRequest{RefreshToken: first.Tokens.RefreshToken})
	assert.Equal(t, "DEVICE_MISMATCH", code(err))
}

func TestRefresh_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "alice", "s3cretpass")
	login, err := f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "s3cretpass"}, web("phone-1"))
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	res, err := f.svc.Session.Refresh(ctx, dto.RefreshRequest{RefreshToken: login.Tokens.RefreshToken, DeviceID: "phone-1"})
	require.NoError(t, err)
	assert.Equal(t, "phone-1", res.DeviceID)

	claims, err := f.issuer.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "phone-1", claims.DeviceID)

	// Sin deviceId en el request se responde el del refresh token.
	again, err := f.svc.Session.Refresh(ctx, dto.RefreshRequest{RefreshToken: res.Tokens.RefreshToken})
	require.NoError(t, err)
	assert.Equal(t, "phone-1", again.DeviceID)

	_, err = f.svc.Session.Refresh(ctx, dto.RefreshRequest{})
	assert.Equal(t, "TOKEN_MISSING", code(err))
}

func TestLogout_DeactivatesDevice(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "alice", "s3cretpass")
	a, err := f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "s3cretpass"}, web("a"))
	require.NoError(t, err)
	b, err := f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "s3cretpass"}, web("b"))
	require.NoError(t, err)

	claims, err := f.issuer.VerifyAccess(a.Tokens.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.svc.Session.Logout(ctx, claims))
	require.NoError(t, f.svc.Session.Logout(ctx, claims))

	_, err = f.svc.Session.Refresh(ctx, dto.RefreshRequest{RefreshToken: a.Tokens.RefreshToken})
	assert.Equal(t, "DEVICE_MISMATCH", code(err))
	_, err = f.svc.Session.Refresh(ctx, dto.RefreshRequest{RefreshToken: b.Tokens.RefreshToken})
	require.NoError(t, err)

	n, err := f.svc.Session.LogoutAll(ctx, a.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := f.svc.Devices.List(ctx, a.User.ID, "b")
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, d := range list {
		assert.False(t, d.Active)
	}
}

func TestDevices_Revoke(t *testing.T) {
	f := newFixture(t)
	u := f.registerVerified(t, "alice", "s3cretpass")
	_, err := f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "s3cretpass"}, web("tablet"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Devices.Revoke(ctx, u.ID, "tablet"))
	assert.Equal(t, "NOT_FOUND", code(f.svc.Devices.Revoke(ctx, u.ID, "nope")))
	assert.Equal(t, "VALIDATION_ERROR", code(f.svc.Devices.Revoke(ctx, u.ID, " ")))
}

func TestOAuthLogin(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Session.OAuthLogin(ctx, "Google", dto.OAuthLoginRequest{OAuthID: "g-998877665544", Email: "new@cici.test"}, web("d1"))
	require.NoError(t, err)
	require.NotNil(t, res.IsNewUser)
	assert.True(t, *res.IsNewUser)
	assert.Equal(t, "google_g9988776", res.User.Username)
	assert.True(t, res.User.EmailVerified)

	again, err := f.svc.Session.OAuthLogin(ctx, "google", dto.OAuthLoginRequest{OAuthID: "g-998877665544", Email: "new@cici.test"}, web("d1"))
	require.NoError(t, err)
	assert.False(t, *again.IsNewUser)
	assert.Equal(t, res.User.ID, again.User.ID)

	// vincula por email una cuenta local todavía sin verificar
	_, err = f.svc.Account.Register(ctx, dto.RegisterRequest{Username: "carla", Email: "carla@cici.test", Password: "s3cretpass"})
	require.NoError(t, err)
	linked, err := f.svc.Session.OAuthLogin(ctx, "apple", dto.OAuthLoginRequest{OAuthID: "a-1", Email: "carla@cici.test"}, web("d2"))
	require.NoError(t, err)
	assert.False(t, *linked.IsNewUser)
	assert.Equal(t, "carla", linked.User.Username)
	assert.Equal(t, "active", linked.User.Status)

	_, err = f.svc.Session.OAuthLogin(ctx, "myspace", dto.OAuthLoginRequest{OAuthID: "x", Email: "x@cici.test"}, web("d3"))
	assert.Equal(t, "VALIDATION_ERROR", code(err))
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "alice", "s3cretpass")

	// lockear la cuenta para comprobar que el reset la libera
	for i := 0; i < 5; i++ {
		_, _ = f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "wrong-pass1"}, web("d1"))
	}

	res, err := f.svc.Account.ForgotPassword(ctx, "alice@cici.test")
	require.NoError(t, err)
	require.NotEmpty(t, res.ResetToken)

	unknown, err := f.svc.Account.ForgotPassword(ctx, "ghost@cici.test")
	require.NoError(t, err)
	assert.Empty(t, unknown.ResetToken)

	require.NoError(t, f.svc.Account.ResetPassword(ctx, dto.ResetPasswordRequest{Token: res.ResetToken, Password: "n3wpassword"}))

	err = f.svc.Account.ResetPassword(ctx, dto.ResetPasswordRequest{Token: res.ResetToken, Password: "an0therpass"})
	assert.Equal(t, "INVALID_TOKEN", code(err))

	_, err = f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "n3wpassword"}, web("d1"))
	require.NoError(t, err)

	err = f.svc.Account.ResetPassword(ctx, dto.ResetPasswordRequest{Token: res.ResetToken, Password: "x"})
	assert.Error(t, err)
}

func TestVerifyEmail_RejectsOtherPurpose(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "alice", "s3cretpass")
	res, err := f.svc.Account.ForgotPassword(ctx, "alice@cici.test")
	require.NoError(t, err)

	_, err = f.svc.Account.VerifyEmail(ctx, res.ResetToken)
	assert.Equal(t, "INVALID_TOKEN", code(err))
}

func TestUpdateProfile_RecomputesMinor(t *testing.T) {
	f := newFixture(t)
	u := f.registerVerified(t, "alice", "s3cretpass")
	assert.False(t, u.IsMinor)

	kid := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
	name := "Ali"
	got, err := f.svc.Account.UpdateProfile(ctx, u.ID, dto.ProfileUpdateRequest{
		ProfileInput: dto.ProfileInput{FirstName: &name, BirthDate: &kid},
	})
	require.NoError(t, err)
	assert.True(t, got.IsMinor)
	assert.Equal(t, "Ali", got.Profile.FirstName)

	adult := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err = f.svc.Account.UpdateProfile(ctx, u.ID, dto.ProfileUpdateRequest{ProfileInput: dto.ProfileInput{BirthDate: &adult}})
	require.NoError(t, err)
	assert.False(t, got.IsMinor)
	assert.Equal(t, "Ali", got.Profile.FirstName)

	future := f.clock.Now().Add(24 * time.Hour)
	_, err = f.svc.Account.UpdateProfile(ctx, u.ID, dto.ProfileUpdateRequest{ProfileInput: dto.ProfileInput{BirthDate: &future}})
	assert.Equal(t, "VALIDATION_ERROR", code(err))
}

func TestDelete_TombstoneAndFamilyCascade(t *testing.T) {
	f := newFixture(t)
	u := f.registerVerified(t, "alice", "s3cretpass")
	_, err := f.identities.Update(ctx, u.ID, func(i *repository.Identity) error {
		i.Role = types.RoleParent
		return nil
	})
	require.NoError(t, err)
	g, err := f.families.Create(ctx, u.ID, family.CreateInput{Name: "Casa"})
	require.NoError(t, err)
	_, err = f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "s3cretpass"}, web("d1"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Account.Delete(ctx, u.ID))

	ident, err := f.identities.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeleted, ident.Status)
	assert.Equal(t, "deleted_"+u.ID, ident.Username)
	assert.Equal(t, "deleted+"+u.ID+"@invalid", ident.Email)
	assert.Nil(t, ident.PasswordHash)
	assert.Nil(t, ident.FamilyGroupID)
	for _, d := range ident.Devices {
		assert.False(t, d.Active)
	}

	_, err = f.families.Get(ctx, u.ID, g.ID)
	assert.Error(t, err)

	_, err = f.svc.Account.Me(ctx, u.ID)
	assert.Equal(t, "NOT_FOUND", code(err))
	assert.Equal(t, "NOT_FOUND", code(f.svc.Account.Delete(ctx, u.ID)))

	// email y username quedan libres
	f.registerVerified(t, "alice", "s3cretpass")
}

func TestValidateOffline(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "alice", "s3cretpass")
	login, err := f.svc.Session.Login(ctx, dto.LoginRequest{Login: "alice", Password: "s3cretpass"}, web("d1"))
	require.NoError(t, err)

	f.clock.Advance(20 * 24 * time.Hour)
	res := f.svc.Session.ValidateOffline(ctx, login.Tokens.AccessToken)
	assert.True(t, res.Valid)
	assert.True(t, res.NeedsOnlineVerification)
	assert.True(t, res.EmbeddedExpired)
	require.NotNil(t, res.User)
	assert.Equal(t, "alice", res.User.Username)

	f.clock.Advance(2 * 24 * time.Hour)
	res = f.svc.Session.ValidateOffline(ctx, login.Tokens.AccessToken)
	assert.False(t, res.Valid)
	assert.Nil(t, res.User)

	res = f.svc.Session.ValidateOffline(ctx, "garbage")
	assert.False(t, res.Valid)
	assert.Equal(t, string(offline.ReasonMalformed), res.Reason)
}
