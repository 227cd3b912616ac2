package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"exchange":"okx","symbol":"ETH/USDT"}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ETH/USDT", cfg.Symbol)
	assert.Equal(t, "market", cfg.OrderType)
	assert.Equal(t, "5m", cfg.SigmaMACDTimeframe)
	assert.Equal(t, 30, cfg.PollIntervalSec)
}

func TestLoadConfigSimulatedEnvForcesDryRun(t *testing.T) {
	path := writeConfig(t, `{"exchange":"okx","symbol":"ETH/USDT","simulated_env":true,"dry_run":false}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.DryRun, "simulated env must never place real orders")
	assert.True(t, cfg.IsTestnet)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{"exchange":`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
