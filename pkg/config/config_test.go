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
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "vocabify.db", cfg.Database.Path)
	assert.Equal(t, "https://api.wanikani.com/v2/", cfg.WaniKani.BaseURL)
	assert.Equal(t, "20170710", cfg.WaniKani.Revision)
	assert.Equal(t, 30*time.Second, cfg.WaniKani.Timeout)
	assert.Equal(t, time.Hour, cfg.Alarms.Assignments)
	assert.Equal(t, 24*time.Hour, cfg.Alarms.Subjects)
	assert.Equal(t, 24*time.Hour, cfg.Alarms.User)
	assert.False(t, cfg.Vocab.Readings)
	assert.Equal(t, "development", cfg.Log.Mode)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocabify.yaml")
	yaml := "database:\n  path: from-file.db\nwanikani:\n  api_token: file-token\nalarms:\n  assignments: 15m\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("WANIKANI_API_TOKEN", "env-token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.Database.Path)
	assert.Equal(t, "env-token", cfg.WaniKani.Token)
	assert.Equal(t, 15*time.Minute, cfg.Alarms.Assignments)
	assert.Equal(t, 24*time.Hour, cfg.Alarms.User)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestValidateRejectsNonPositiveIntervals(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("VOCABIFY_USER_INTERVAL", "0s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alarms.user")
}
