package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
http_server:
  address: "localhost:9999"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "localhost:9999", cfg.Addr)
	assert.Equal(t, 200.0, cfg.Geofence.DefaultThresholdMeters)
	assert.Equal(t, 5000.0, cfg.Geofence.SwapCutoffMeters)
	assert.True(t, cfg.Geofence.AutoSwapEnabled())
	assert.Equal(t, 10*time.Second, cfg.Geofence.LocationTimeout)
	assert.Equal(t, "nominatim", cfg.Geocode.Provider)
	assert.True(t, cfg.Geocode.CacheEnabled())
	assert.Equal(t, 256, cfg.QR.Size)
	assert.False(t, cfg.Export.Enabled)
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
env: "prod"
http_server:
  address: ":8080"
geofence:
  default_threshold_meters: 50
  auto_swap: false
geocode:
  provider: "none"
  cache: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, 50.0, cfg.Geofence.DefaultThresholdMeters)
	assert.False(t, cfg.Geofence.AutoSwapEnabled())
	assert.False(t, cfg.Geocode.CacheEnabled())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GEOFENCE_THRESHOLD_METERS", "75")
	path := writeConfig(t, `
http_server:
  address: ":8080"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 75.0, cfg.Geofence.DefaultThresholdMeters)
}

func TestLoad_EnvTogglesOverrideFile(t *testing.T) {
	t.Setenv("GEOFENCE_AUTO_SWAP", "false")
	t.Setenv("GEOCODE_CACHE", "0")
	path := writeConfig(t, `
http_server:
  address: ":8080"
geofence:
  auto_swap: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Geofence.AutoSwapEnabled())
	assert.False(t, cfg.Geocode.CacheEnabled())
}

func TestToggle(t *testing.T) {
	var tg Toggle
	assert.True(t, tg.Enabled(true))
	assert.False(t, tg.Enabled(false))

	require.NoError(t, tg.UnmarshalText([]byte("false")))
	assert.False(t, tg.Enabled(true))
	require.NoError(t, tg.UnmarshalText([]byte(" TRUE ")))
	assert.True(t, tg.Enabled(false))

	assert.Error(t, tg.UnmarshalText([]byte("maybe")))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad driver", "http_server: {address: ':1'}\nstorage: {driver: mongo}\n", "storage.driver"},
		{"postgres without dsn", "http_server: {address: ':1'}\nstorage: {driver: postgres}\n", "storage.dsn"},
		{"google without key", "http_server: {address: ':1'}\ngeocode: {provider: google}\n", "google_api_key"},
		{"export without endpoint", "http_server: {address: ':1'}\nexport: {enabled: true}\n", "export.endpoint"},
		{"bad env", "env: test\nhttp_server: {address: ':1'}\n", "env must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv("GOOGLE_MAPS_API_KEY", "")
			t.Setenv("MINIO_ENDPOINT", "")

			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "does not exist")
}
