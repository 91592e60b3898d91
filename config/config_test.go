package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8787, cfg.Server.HTTPPort)
	require.Equal(t, "./trust.json", cfg.Trust.Path)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SGN_HTTP_PORT", "9191")
	t.Setenv("SGN_DB", "/tmp/custom.db")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.HTTPPort)
	require.Equal(t, "/tmp/custom.db", cfg.DB.Path)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("SGN_HTTP_PORT", "0")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadReadsProjectFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/sgn.toml", []byte("http_port = 7000\n"), 0644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.Server.HTTPPort)
}
