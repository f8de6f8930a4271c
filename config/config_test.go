package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Mode)
	assert.Equal(t, "aws", cfg.Provider)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 4, cfg.ScanWorkers)
	assert.Equal(t, 15*time.Second, cfg.ScanTimeout)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: prod
region: eu-west-1
max_retries: 5
cache_ttl: 10m
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Mode)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	// Unset fields keep their defaults.
	assert.Equal(t, "OrganizationAccountAccessRole", cfg.RoleName)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("region: eu-west-1\n"), 0o600))
	t.Setenv("COMMANDCENTER_REGION", "ap-southeast-2")
	t.Setenv("COMMANDCENTER_SCAN_TIMEOUT", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-2", cfg.Region)
	assert.Equal(t, 30*time.Second, cfg.ScanTimeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"COMMANDCENTER_MODE":        "yolo",
		"COMMANDCENTER_LOG_LEVEL":   "verbose",
		"COMMANDCENTER_MAX_RETRIES": "0",
		"COMMANDCENTER_HTTP_ADDR":   "not-an-addr",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsUnparseableEnv(t *testing.T) {
	t.Setenv("COMMANDCENTER_SCAN_TIMEOUT", "fifteen seconds")
	_, err := Load("")
	require.Error(t, err)
}

func TestProdRejectsFixtureProvider(t *testing.T) {
	t.Setenv("COMMANDCENTER_MODE", "prod")
	t.Setenv("COMMANDCENTER_PROVIDER", "fixture")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture provider")
}

func TestFixtureProviderAllowedInDev(t *testing.T) {
	t.Setenv("COMMANDCENTER_PROVIDER", "fixture")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "fixture", cfg.Provider)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
