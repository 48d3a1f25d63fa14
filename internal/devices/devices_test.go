package devices

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	"github.com/dropDatabas3/ciciauth/internal/store/adapters/memory"
)

func desc(id string) Descriptor {
	return Descriptor{DeviceID: id, DeviceType: types.DeviceMobile, UserAgent: "test"}
}

func TestUpsert_ReplacesExisting(t *testing.T) {
	t0 := time.Unix(1000, 0)
	list := Upsert(nil, desc("a"), t0, "jti-1", 10)
	Revoke(list, "a")

	t1 := t0.Add(time.Hour)
	list = Upsert(list, desc("a"), t1, "jti-2", 10)
	require.Len(t, list, 1)
	require.True(t, list[0].Active)
	require.Equal(t, t1, list[0].LastSeen)
	require.Equal(t, "jti-2", list[0].RefreshJTI)
}

func TestUpsert_EvictsLeastRecentlySeen(t *testing.T) {
	base := time.Unix(1000, 0)
	var list []repository.Device
	for k := 0; k < 10; k++ {
		list = Upsert(list, desc(fmt.Sprintf("d%d", k)), base.Add(time.Duration(k)*time.Minute), "", 10)
	}
	// d0 vuelve a verse: ahora el más viejo es d1.
	list = Upsert(list, desc("d0"), base.Add(time.Hour), "", 10)
	list = Upsert(list, desc("d10"), base.Add(2*time.Hour), "", 10)

	require.Len(t, list, 10)
	_, ok := FindActive(list, "d1")
	require.False(t, ok)
	_, ok = FindActive(list, "d0")
	require.True(t, ok)
	_, ok = FindActive(list, "d10")
	require.True(t, ok)
}

func TestUpsert_TieEvictsEarliestEntry(t *testing.T) {
	now := time.Unix(1000, 0)
	var list []repository.Device
	for k := 0; k < 3; k++ {
		list = Upsert(list, desc(fmt.Sprintf("d%d", k)), now, "", 3)
	}
	list = Upsert(list, desc("d3"), now, "", 3)
	require.Equal(t, []string{"d1", "d2", "d3"}, ids(list))
}

func TestRevokeAll(t *testing.T) {
	now := time.Unix(1000, 0)
	list := Upsert(nil, desc("a"), now, "x", 10)
	list = Upsert(list, desc("b"), now, "y", 10)
	Revoke(list, "b")
	require.Equal(t, 1, RevokeAll(list))
	for _, d := range list {
		require.False(t, d.Active)
		require.Empty(t, d.RefreshJTI)
	}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().Identities()
	h := "hash"
	require.NoError(t, repo.Create(ctx, &repository.Identity{ID: "u1", Username: "ana", Email: "ana@x.io", PasswordHash: &h}))

	clk := time.Unix(5000, 0)
	reg := NewRegistry(repo, 2, func() time.Time { return clk })

	_, err := reg.Upsert(ctx, "u1", desc("a"), "j1")
	require.NoError(t, err)
	clk = clk.Add(time.Minute)
	_, err = reg.Upsert(ctx, "u1", desc("b"), "j2")
	require.NoError(t, err)
	clk = clk.Add(time.Minute)
	ident, err := reg.Upsert(ctx, "u1", desc("c"), "j3")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, ids(ident.Devices))
	require.NotNil(t, ident.LastLoginAt)

	list, err := reg.List(ctx, "u1")
	require.NoError(t, err)
	_, ok := FindActive(list, "a")
	require.False(t, ok)

	require.NoError(t, reg.Revoke(ctx, "u1", "b"))
	list, err = reg.List(ctx, "u1")
	require.NoError(t, err)
	_, ok = FindActive(list, "b")
	require.False(t, ok)
	require.ErrorIs(t, reg.Revoke(ctx, "u1", "zzz"), ErrDeviceNotFound)

	n, err := reg.RevokeAll(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func ids(list []repository.Device) []string {
	out := make([]string, len(list))
	for k, d := range list {
		out[k] = d.DeviceID
	}
	return out
}
