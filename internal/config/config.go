// Package config loads minitwit settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Database drivers understood by storage.Open.
const (
	DriverSQLite     = "sqlite3"
	DriverGormSQLite = "gorm-sqlite"
	DriverPostgres   = "postgres"
)

type Config struct {
	Addr          string
	Database      string
	Schema        string
	Driver        string
	DatabaseURL   string
	PerPage       int
	Debug         bool
	SecretKey     string
	TemplateDir   string
	StaticDir     string
	SimulatorAuth string
	LatestFile    string
	LogstashAddr  string
}

func Default() Config {
	return Config{
		Addr:          ":5000",
		Database:      "/tmp/minitwit.db",
		Driver:        DriverSQLite,
		PerPage:       30,
		SecretKey:     "development key",
		TemplateDir:   "templates",
		StaticDir:     "static",
		SimulatorAuth: "Basic c2ltdWxhdG9yOnN1cGVyX3NhZmUh",
	}
}

// Load reads .env (if present) and overlays environment variables on Default.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("MINITWIT_ADDR", &cfg.Addr)
	str("MINITWIT_DATABASE", &cfg.Database)
	str("MINITWIT_SCHEMA", &cfg.Schema)
	str("MINITWIT_DB_DRIVER", &cfg.Driver)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("MINITWIT_SECRET_KEY", &cfg.SecretKey)
	str("MINITWIT_TEMPLATES", &cfg.TemplateDir)
	str("MINITWIT_STATIC", &cfg.StaticDir)
	str("MINITWIT_SIMULATOR_AUTH", &cfg.SimulatorAuth)
	str("MINITWIT_LATEST_FILE", &cfg.LatestFile)
	str("LOGSTASH_ADDR", &cfg.LogstashAddr)

	if v, ok := lookup("MINITWIT_PER_PAGE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid MINITWIT_PER_PAGE %q", v)
		}
		cfg.PerPage = n
	}
	if v, ok := lookup("MINITWIT_DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid MINITWIT_DEBUG %q: %w", v, err)
		}
		cfg.Debug = b
	}

	switch cfg.Driver {
	case DriverSQLite, DriverGormSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required for driver %q", cfg.Driver)
		}
	default:
		return cfg, fmt.Errorf("unknown MINITWIT_DB_DRIVER %q", cfg.Driver)
	}

	return cfg, nil
}
