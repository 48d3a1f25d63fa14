package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, "memory", c.Storage.Driver)
	require.Equal(t, 5, c.Lockout.MaxAttempts)
	require.Equal(t, 2*time.Hour, c.Lockout.Duration)
	require.Equal(t, 10, c.Devices.Max)
	require.Equal(t, 21*24*time.Hour, c.Offline.MaxAge)
	require.Equal(t, 24*time.Hour, c.Offline.ReverifyAfter)
	require.Equal(t, "cici-users", c.JWT.Audience)
	require.True(t, c.ReuseDetection())
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
app:
  env: staging
jwt:
  access_ttl: 5m
  refresh_reuse_detection: false
lockout:
  max_attempts: 3
family:
  bedtime_hour: 20
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("JWT_REFRESH_TTL", "48h")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "staging", c.App.Env)
	require.Equal(t, 5*time.Minute, c.JWT.AccessTTL)
	require.Equal(t, 48*time.Hour, c.JWT.RefreshTTL)
	require.Equal(t, ":9999", c.Server.Addr)
	require.Equal(t, 3, c.Lockout.MaxAttempts)
	require.Equal(t, 20, c.Family.BedtimeHour)
	require.False(t, c.ReuseDetection())
}

func TestValidate(t *testing.T) {
	t.Run("postgres sin dsn", func(t *testing.T) {
		c := Default()
		c.Storage.Driver = "postgres"
		require.Error(t, c.Validate())
	})
	t.Run("claves iguales", func(t *testing.T) {
		c := Default()
		seed := "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="
		c.JWT.AccessKeySeed = seed
		c.JWT.RefreshKeySeed = seed
		require.Error(t, c.Validate())
	})
	t.Run("prod sin claves", func(t *testing.T) {
		c := Default()
		c.App.Env = "prod"
		require.Error(t, c.Validate())
	})
	t.Run("dev ok", func(t *testing.T) {
		require.NoError(t, Default().Validate())
	})
}
