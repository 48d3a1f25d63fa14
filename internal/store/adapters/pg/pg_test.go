package pg

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
)

// Integración real contra Postgres: CICI_TEST_PG_DSN=postgres://... go test ./internal/store/adapters/pg
func openTestConn(t *testing.T) *Conn {
	t.Helper()
	dsn := os.Getenv("CICI_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CICI_TEST_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	c := NewConn(pool)
	t.Cleanup(func() { _ = c.Close() })
	_, err = c.Migrate(ctx)
	require.NoError(t, err)
	return c
}

func TestIdentityRoundTrip(t *testing.T) {
	c := openTestConn(t)
	ctx := context.Background()
	repo := c.Identities()

	suffix := uuid.NewString()[:8]
	h := "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"
	ident := &repository.Identity{
		ID:           uuid.NewString(),
		Username:     "pg_" + suffix,
		Email:        "pg_" + suffix + "@example.com",
		PasswordHash: &h,
		Status:       types.StatusActive,
		Role:         types.RoleParent,
		Permissions:  types.DefaultAccountPermissions(),
	}
	require.NoError(t, repo.Create(ctx, ident))

	dup := *ident
	dup.ID = uuid.NewString()
	dup.Username = "other_" + suffix
	err := repo.Create(ctx, &dup)
	require.Equal(t, "email", repository.ConflictField(err))

	now := time.Now().UTC().Truncate(time.Second)
	updated, err := repo.Update(ctx, ident.ID, func(i *repository.Identity) error {
		i.Devices = append(i.Devices, repository.Device{DeviceID: "d1", Active: true, LastSeen: now, RegisteredAt: now})
		i.FailedAttempts = 2
		return nil
	})
	require.NoError(t, err)
	require.Len(t, updated.Devices, 1)

	got, err := repo.GetByLogin(ctx, ident.Username)
	require.NoError(t, err)
	require.Equal(t, 2, got.FailedAttempts)
	require.Equal(t, "d1", got.Devices[0].DeviceID)
	require.True(t, got.Devices[0].LastSeen.Equal(now))
}
