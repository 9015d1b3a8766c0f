package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsOnlyZeroFields(t *testing.T) {
	c := &Config{}
	c.Firewall.StrikeMax = 9
	c.applyDefaults()

	assert.Equal(t, 9, c.Firewall.StrikeMax) // untouched, already set
	assert.Equal(t, 600.0, c.Firewall.StrikeWindowSecs)
	assert.Equal(t, "8443", c.Server.Port)
	assert.Equal(t, "production", c.Server.Env)
	assert.EqualValues(t, 500_000, c.Firewall.MaxPreVerificationGas)
	assert.Equal(t, 8453, c.Firewall.ChainID)
}

func TestApplyEnvOverridesTakesPrecedenceOverYAMLValue(t *testing.T) {
	c := &Config{}
	c.Upstream.RPCURL = "http://from-yaml"
	t.Setenv("UPSTREAM_RPC", "http://from-env")
	t.Setenv("STRIKE_MAX", "12")

	c.applyEnvOverrides()

	assert.Equal(t, "http://from-env", c.Upstream.RPCURL)
	assert.Equal(t, 12, c.Firewall.StrikeMax)
}

func TestApplyEnvOverridesIgnoresUnsetOrInvalidNumbers(t *testing.T) {
	c := &Config{}
	c.Firewall.StrikeMax = 7
	t.Setenv("STRIKE_MAX", "not-a-number")

	c.applyEnvOverrides()

	assert.Equal(t, 7, c.Firewall.StrikeMax)
}

func TestLoadConfigReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "server:\n  port: \"9000\"\nfirewall:\n  strike_max: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Firewall.StrikeMax)
}

func TestLoadConfigMissingFileReturnsError(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
