package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "noop", cfg.Auth.Module)
}

func TestLoadMergesDefaultsForUnsetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	body := "default_model: granite\ndefault_provider: ollama\ncache:\n  backend: postgres\n  dsn: postgres://x\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "granite", cfg.DefaultModel)
	assert.Equal(t, "postgres", cfg.Cache.Backend)
	assert.Equal(t, "postgres://x", cfg.Cache.DSN)
	// ListenAddr was not set in the file, so the default is merged in.
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "noop", cfg.Auth.Module)
}

func TestLoadParsesMCPServersAndQuotaLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	body := "mcp_servers:\n  - name: search\n    url: http://mcp.local\nquota_limits:\n  - name: daily\n    limit: 10000\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.MCPServers, 1)
	assert.Equal(t, "search", cfg.MCPServers[0].Name)
	require.Len(t, cfg.QuotaLimits, 1)
	assert.Equal(t, 10000, cfg.QuotaLimits[0].Limit)
}
