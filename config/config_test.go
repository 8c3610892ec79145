package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, time.Minute, cfg.Progression.LeaderboardRefresh)
	assert.Equal(t, 100, cfg.Progression.LeaderboardSize)
	assert.Equal(t, DefaultXP(), cfg.Progression.XP)
	assert.Equal(t, 2*time.Second, cfg.Audit.FlushInterval)
}

func TestLoad_YAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 9090
  admin_key: secret
database:
  mode: memory
progression:
  timezone: Europe/Berlin
  xp:
    material_completed: 75
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.AdminKey)
	assert.Equal(t, "memory", cfg.Database.Mode)
	assert.Equal(t, int64(75), cfg.Progression.XP.MaterialCompleted)
	// untouched keys keep their defaults
	assert.Equal(t, int64(5), cfg.Progression.XP.ForumReply)

	loc, err := cfg.Progression.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PROGRESSION_SERVER_PORT", "7000")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLocation_EmptyIsUTC(t *testing.T) {
	loc, err := ProgressionConfig{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLocation_Invalid(t *testing.T) {
	_, err := ProgressionConfig{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}
