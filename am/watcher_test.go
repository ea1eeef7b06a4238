package am

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcherReloadsOnWrite(t *testing.T) {
	isolate(t)
	path, err := filepath.Abs("am.toml")
	require.NoError(t, err)
	writeFile(t, path, "[ingestion]\nprocess_delay = \"1s\"\n")

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	cw.debouncePeriod = 10 * time.Millisecond

	var delay atomic.Int64
	cw.OnReload(func(cfg *Config) error {
		delay.Store(int64(cfg.Ingestion.ProcessDelay))
		return nil
	})
	cw.Start()
	defer cw.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[ingestion]\nprocess_delay = \"7s\"\n"), 0644))

	assert.Eventually(t, func() bool {
		return time.Duration(delay.Load()) == 7*time.Second
	}, 5*time.Second, 20*time.Millisecond)
}

func TestConfigWatcherRejectsInvalidConfig(t *testing.T) {
	isolate(t)
	writeFile(t, "am.toml", "[server]\nport = -1\n")

	cw, err := NewConfigWatcher("am.toml")
	require.NoError(t, err)
	defer cw.Stop()

	called := false
	cw.OnReload(func(*Config) error {
		called = true
		return nil
	})

	err = cw.reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.False(t, called)
}
