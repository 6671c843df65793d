package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rgbsdkd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen:
  - "0.0.0.0:6742"
  - "[::]:6742"
recv_timeout: 10s
queue_depth: 128
legacy_protocol_0: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"0.0.0.0:6742", "[::]:6742"}, cfg.Listen)
	require.Equal(t, 10*time.Second, cfg.RecvTimeout)
	require.Equal(t, 128, cfg.QueueDepth)
	require.True(t, cfg.LegacyProtocol0)
}

func TestWatcherFiresOnLiveReloadableChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rgbsdkd.yaml")
	initial := DefaultConfig()
	require.NoError(t, os.WriteFile(path, marshalTestConfig(t, initial), 0o644))

	changed := make(chan Config, 1)
	w, err := NewWatcher(path, initial, func(c Config) { changed <- c }, nil)
	require.NoError(t, err)
	defer w.Close()

	updated := initial
	updated.QueueDepth = 256
	require.NoError(t, os.WriteFile(path, marshalTestConfig(t, updated), 0o644))

	select {
	case c := <-changed:
		require.Equal(t, 256, c.QueueDepth)
	case <-time.After(3 * time.Second):
		t.Fatal("expected watcher to fire on config change")
	}
}

func marshalTestConfig(t *testing.T, cfg Config) []byte {
	t.Helper()
	// yaml.Marshal writes a time.Duration in its String() form (e.g.
	// "5s"), which Load's yaml.Unmarshal parses back into the same
	// Duration.
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	return data
}
