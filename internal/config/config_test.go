package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-fleet-portal/internal/config"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
env: PROD
apiBaseUrl: https://api.fleet.test
identity:
  issuer: https://login.fleet.test/
  clientId: portal
  scopes: [openid, offline_access]
session:
  refreshSafetyMargin: 45s
realtime:
  maxBackoff: 20s
  fleetHubPath: /hubs/fleet
polling:
  telemetryInterval: 10s
publicPaths:
  - /api/Countries
`

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := config.FromFile(nil)

	require.Equal(t, "DEV", cfg.GetEnv())
	require.Equal(t, ":4200", cfg.GetCallbackAddr())
	require.Equal(t, 30*time.Second, cfg.GetRefreshSafetyMargin())
	require.Equal(t, 30*time.Second, cfg.GetRefreshMinimumDelay())
	require.Equal(t, 5*time.Second, cfg.GetTokenFetchTimeout())
	require.Equal(t, time.Second, cfg.GetInitialBackoff())
	require.Equal(t, 30*time.Second, cfg.GetMaxBackoff())
	require.Equal(t, 60*time.Second, cfg.GetReconnectWindow())
	require.Equal(t, "/hub/fleets", cfg.GetFleetHubPath())
	require.Equal(t, "/hub/vehicles", cfg.GetVehicleHubPath())
	require.Equal(t, 15*time.Second, cfg.GetTelemetryPollInterval())
	require.Equal(t, 30*time.Second, cfg.GetFleetPollInterval())
	require.Equal(t, []string{"openid", "profile", "email", "offline_access"}, cfg.GetScopes())
	require.True(t, cfg.GetPublicPaths().IsPublic("/api/cities?countryId=1"))
}

func TestLoadFile(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	require.Equal(t, "PROD", cfg.GetEnv())
	require.Equal(t, "https://api.fleet.test", cfg.GetAPIBaseURL())
	require.Equal(t, "https://login.fleet.test/", cfg.GetIssuerURL())
	require.Equal(t, []string{"openid", "offline_access"}, cfg.GetScopes())
	require.Equal(t, 45*time.Second, cfg.GetRefreshSafetyMargin())
	require.Equal(t, 30*time.Second, cfg.GetRefreshMinimumDelay())
	require.Equal(t, 20*time.Second, cfg.GetMaxBackoff())
	require.Equal(t, "/hubs/fleet", cfg.GetFleetHubPath())
	require.Equal(t, 10*time.Second, cfg.GetTelemetryPollInterval())
	require.False(t, cfg.GetPublicPaths().IsPublic("/api/Cities"))
}

func TestEnvironmentOverridesFile(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg config.Config)
	}{
		{
			name: "string",
			env:  map[string]string{"API_BASE_URL": "http://localhost:5000"},
			check: func(t *testing.T, cfg config.Config) {
				require.Equal(t, "http://localhost:5000", cfg.GetAPIBaseURL())
			},
		},
		{
			name: "duration",
			env:  map[string]string{"SESSION_REFRESH_MARGIN": "1m"},
			check: func(t *testing.T, cfg config.Config) {
				require.Equal(t, time.Minute, cfg.GetRefreshSafetyMargin())
			},
		},
		{
			name: "invalid duration keeps file value",
			env:  map[string]string{"REALTIME_MAX_BACKOFF": "soon"},
			check: func(t *testing.T, cfg config.Config) {
				require.Equal(t, 20*time.Second, cfg.GetMaxBackoff())
			},
		},
		{
			name: "list",
			env:  map[string]string{"MEDIATOR_PUBLIC_PATHS": " /api/Countries , /api/Cities ,"},
			check: func(t *testing.T, cfg config.Config) {
				require.Equal(t, config.PublicPaths{"/api/Countries", "/api/Cities"}, cfg.GetPublicPaths())
			},
		},
	}

	path := writeConfig(t, sampleConfig)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := config.Load(path)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestNewReadsConfigFileVar(t *testing.T) {
	t.Setenv("FLEET_CONFIG", writeConfig(t, sampleConfig))
	cfg, err := config.New()
	require.NoError(t, err)
	require.Equal(t, "PROD", cfg.GetEnv())

	t.Setenv("FLEET_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = config.New()
	require.Error(t, err)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := config.Parse([]byte("session: [unterminated"))
	require.Error(t, err)
}
