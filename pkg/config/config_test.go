package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 300*time.Millisecond, c.SettleDelay())
	assert.Equal(t, 500*time.Millisecond, c.RetryBackoff())
	assert.Equal(t, 30*time.Second, c.ConnectTimeout())
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	c, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"log_level: debug\nretry_backoff_ms: 2000\n"), 0o644))

	c, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 2*time.Second, c.RetryBackoff())
	// Untouched keys keep their defaults.
	assert.Equal(t, 300*time.Millisecond, c.SettleDelay())
	assert.Equal(t, 30*time.Second, c.ConnectTimeout())
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: loud\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	c := DefaultConfig()
	c.LogLevel = "warn"

	logger := c.NewLogger()
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}
