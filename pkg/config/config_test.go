package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	assert.Nil(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Presence.OnlineWindow)
	assert.Equal(t, 5*time.Minute, cfg.Presence.SweepInterval)
	assert.Equal(t, 60*time.Minute, cfg.Presence.ResyncInterval)
	assert.Equal(t, 90*time.Second, cfg.Session.Timeout)
}

func TestLoad_DurationOverrides(t *testing.T) {
	t.Setenv("PRESENCE_ONLINE_WINDOW", "10m")
	t.Setenv("SESSION_TIMEOUT", "45")

	cfg, err := Load()

	assert.Nil(t, err)
	assert.Equal(t, 10*time.Minute, cfg.Presence.OnlineWindow)
	assert.Equal(t, 45*time.Second, cfg.Session.Timeout)
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("PRESENCE_SWEEP_INTERVAL", "not-a-duration")

	cfg, err := Load()

	assert.Nil(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Presence.SweepInterval)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("PRESENCE_TIMEZONE", "Mars/Olympus_Mons")

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.NotNil(t, err)
}

func TestLoad_ExplicitTimezone(t *testing.T) {
	t.Setenv("PRESENCE_TIMEZONE", "UTC")

	cfg, err := Load()

	assert.Nil(t, err)
	assert.Equal(t, time.UTC, cfg.Presence.Location())
}

func TestLoad_PostgresDSN(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_NAME", "presence_test")

	cfg, err := Load()

	assert.Nil(t, err)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Contains(t, cfg.Database.DSN, "dbname=presence_test")
	assert.Empty(t, cfg.Database.Path)
}
