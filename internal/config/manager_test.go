package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, path string, port int) {
	t.Helper()
	content := fmt.Sprintf(`
server:
  port: %d
vector_store:
  collections:
    wiki: wiki_docs
`, port)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewManager_LoadsInitialConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeTestConfig(t, path, 8080)

	mgr, err := NewManager(path, slog.Default())
	require.NoError(t, err)
	defer mgr.Close()

	cfg := mgr.Get()
	require.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.Port)

	status := mgr.Status()
	assert.Equal(t, path, status.Path)
	assert.NotEmpty(t, status.Checksum)
	assert.Equal(t, uint64(1), status.ReloadCount)
}

func TestManager_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeTestConfig(t, path, 8080)

	mgr, err := NewManager(path, slog.Default())
	require.NoError(t, err)
	defer mgr.Close()

	var notified *Config
	mgr.OnChange(func(c *Config) { notified = c })

	writeTestConfig(t, path, 9090)
	require.NoError(t, mgr.Reload())

	assert.Equal(t, 9090, mgr.Get().Server.Port)
	require.NotNil(t, notified)
	assert.Equal(t, 9090, notified.Server.Port)
}

func TestManager_Watch_PicksUpFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeTestConfig(t, path, 8080)

	mgr, err := NewManager(path, slog.Default())
	require.NoError(t, err)
	defer mgr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Watch(ctx))

	writeTestConfig(t, path, 9090)

	require.Eventually(t, func() bool {
		return mgr.Get().Server.Port == 9090
	}, 3*time.Second, 50*time.Millisecond)
}
