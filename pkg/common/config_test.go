package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

func TestConfigDefaults(t *testing.T) {
	cm, err := NewConfigManagerFromPath[types.AppConfig]("")
	require.NoError(t, err)

	config := cm.GetConfig()
	assert.True(t, config.IsLocalMode())
	assert.Equal(t, 5*time.Minute, config.OAuth.RefreshBuffer)
	assert.Equal(t, 30*time.Second, config.Gmail.RequestTimeout)
	assert.Equal(t, int64(100), config.Ingest.PageSize)
	assert.Equal(t, 10, config.Ingest.MaxPages)
	assert.Equal(t, 15*time.Minute, config.Scheduler.Interval)
	assert.Contains(t, config.Ingest.FreeMailDomains, "gmail.com")
	assert.Equal(t, 1994, config.Gateway.HTTP.Port)
}

func TestConfigFileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: remote
ingest:
  maxPages: 3
oauth:
  refreshBuffer: 2m
database:
  redis:
    addrs: "localhost:6379,localhost:6380"
`), 0o600))

	cm, err := NewConfigManagerFromPath[types.AppConfig](path)
	require.NoError(t, err)

	config := cm.GetConfig()
	assert.False(t, config.IsLocalMode())
	assert.Equal(t, 3, config.Ingest.MaxPages)
	assert.Equal(t, int64(100), config.Ingest.PageSize, "unset keys keep defaults")
	assert.Equal(t, 2*time.Minute, config.OAuth.RefreshBuffer)
	assert.Equal(t, []string{"localhost:6379", "localhost:6380"}, config.Database.Redis.Addrs)
}

func TestConfigJSONOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"gmail": {"requestTimeout": "5s"}}`), 0o600))

	cm, err := NewConfigManagerFromPath[types.AppConfig](path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cm.GetConfig().Gmail.RequestTimeout)
}

func TestConfigMissingFile(t *testing.T) {
	_, err := NewConfigManagerFromPath[types.AppConfig]("/does/not/exist.yaml")
	assert.Error(t, err)
}
