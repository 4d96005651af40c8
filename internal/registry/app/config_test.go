package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("REGISTRY_JWT_SECRET", "test-secret")

	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		require.Equal(t, "skillchain-registry", cfg.Issuer)
		require.Equal(t, "test-secret", cfg.RefreshSecret)
		require.Equal(t, 8080, cfg.Port)
		require.Equal(t, "dev", cfg.Env)
		require.False(t, cfg.SecureCookies)
		require.NotEmpty(t, cfg.CORSOrigins)
	})

	t.Run("jwt secret is required", func(t *testing.T) {
		t.Setenv("REGISTRY_JWT_SECRET", "")

		_, err := LoadConfig()
		require.Error(t, err)
	})

	t.Run("refresh secret can differ", func(t *testing.T) {
		t.Setenv("REGISTRY_REFRESH_SECRET", "other-secret")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		require.Equal(t, "other-secret", cfg.RefreshSecret)
	})

	t.Run("admin addresses normalise to lowercase", func(t *testing.T) {
		t.Setenv("REGISTRY_ADMIN_ADDRESSES", "0xABC, 0xdef")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		require.Equal(t, []string{"0xabc", "0xdef"}, cfg.AdminAddresses)
	})

	t.Run("prod requires explicit cors origins", func(t *testing.T) {
		t.Setenv("ENV", "prod")

		_, err := LoadConfig()
		require.Error(t, err)

		t.Setenv("REGISTRY_CORS_ORIGINS", "*")
		_, err = LoadConfig()
		require.Error(t, err)

		t.Setenv("REGISTRY_CORS_ORIGINS", "https://app.skillchain.io")
		cfg, err := LoadConfig()
		require.NoError(t, err)
		require.Equal(t, []string{"https://app.skillchain.io"}, cfg.CORSOrigins)
		require.True(t, cfg.SecureCookies)
	})

	t.Run("durations accept plain seconds", func(t *testing.T) {
		t.Setenv("REGISTRY_ACCESS_TTL", "900")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	})
}
