package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Presence PresenceConfig
	Session  SessionConfig
}

type ServerConfig struct {
	Host string
	Port string
	Env  string
}

type DatabaseConfig struct {
	Type string // "sqlite" or "postgres"
	DSN  string
	Path string // For SQLite: file path
}

// PresenceConfig controls the visitor presence engine.
type PresenceConfig struct {
	OnlineWindow   time.Duration // how long an unrefreshed online marker stays live
	SweepInterval  time.Duration // how often stale online rows are expired
	ResyncInterval time.Duration // how often the in-memory presence set is rebuilt
	Timezone       string        // IANA name used for the "today" boundary
}

// SessionConfig controls the token-based active session counter.
type SessionConfig struct {
	Timeout time.Duration // a session is active while its last ping is within this window
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dbType := getEnv("DB_TYPE", "sqlite") // Default to SQLite for development
	dsn, dbPath := buildDSN(dbType)

	tz := getEnv("PRESENCE_TIMEZONE", "Local")
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid PRESENCE_TIMEZONE %q: %w", tz, err)
	}

	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Type: dbType,
			DSN:  dsn,
			Path: dbPath,
		},
		Presence: PresenceConfig{
			OnlineWindow:   getDuration("PRESENCE_ONLINE_WINDOW", 30*time.Minute),
			SweepInterval:  getDuration("PRESENCE_SWEEP_INTERVAL", 5*time.Minute),
			ResyncInterval: getDuration("PRESENCE_RESYNC_INTERVAL", 60*time.Minute),
			Timezone:       tz,
		},
		Session: SessionConfig{
			Timeout: getDuration("SESSION_TIMEOUT", 90*time.Second),
		},
	}, nil
}

// Location resolves the configured timezone. Load validates the name, so a
// lookup failure here only happens for zero-value configs in tests.
func (pc PresenceConfig) Location() *time.Location {
	loc, err := time.LoadLocation(pc.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func buildDSN(dbType string) (string, string) {
	if dbType == "postgres" {
		// PostgreSQL configuration
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbUser := getEnv("DB_USER", "postgres")
		dbPassword := getEnv("DB_PASSWORD", "postgres")
		dbName := getEnv("DB_NAME", "presence_engine")
		sslMode := getEnv("DB_SSLMODE", "disable")

		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			dbHost, dbPort, dbUser, dbPassword, dbName, sslMode,
		)
		return dsn, ""
	}

	// SQLite configuration (default for development)
	dbPath := getEnv("SQLITE_PATH", "./data/presence_engine.db")
	dsn := dbPath + "?mode=rwc&cache=shared&timeout=5000"
	return dsn, dbPath
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
