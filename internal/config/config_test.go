package config

import "testing"

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.PerPage != 30 || cfg.SecretKey != "development key" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"MINITWIT_ADDR":      ":9090",
		"MINITWIT_PER_PAGE":  "10",
		"MINITWIT_DEBUG":     "true",
		"MINITWIT_DATABASE":  "/tmp/other.db",
		"MINITWIT_DB_DRIVER": DriverGormSQLite,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9090" || cfg.PerPage != 10 || !cfg.Debug || cfg.Database != "/tmp/other.db" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Driver != DriverGormSQLite {
		t.Errorf("expected driver %q, got %q", DriverGormSQLite, cfg.Driver)
	}
}

func TestFromEnvInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"per page not a number": {"MINITWIT_PER_PAGE": "lots"},
		"per page zero":         {"MINITWIT_PER_PAGE": "0"},
		"debug not a bool":      {"MINITWIT_DEBUG": "maybe"},
		"unknown driver":        {"MINITWIT_DB_DRIVER": "oracle"},
		"postgres without dsn":  {"MINITWIT_DB_DRIVER": DriverPostgres},
	}
	for name, env := range cases {
		if _, err := FromEnv(lookupFrom(env)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
