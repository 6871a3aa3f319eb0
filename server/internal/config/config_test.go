package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"SERVER_HOST", "SERVER_PORT", "DB_HOST", "TLS_CERT_PATH"} {
		os.Unsetenv(k)
	}

	cfg := Load()
	if cfg.Server.Port != 12345 {
		t.Errorf("default port = %d, want 12345", cfg.Server.Port)
	}
	if cfg.TLS.CertPath != "server.crt" {
		t.Errorf("default cert path = %q, want server.crt", cfg.TLS.CertPath)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	os.Setenv("SERVER_PORT", "9999")
	defer os.Unsetenv("SERVER_PORT")

	cfg := Load()
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
}

func TestDSNContainsAllFields(t *testing.T) {
	db := DatabaseConfig{
		Host: "db.internal", Port: 5432, User: "u", Password: "p", Database: "messenger", SSLMode: "disable",
	}
	dsn := db.DSN()
	want := "host=db.internal port=5432 user=u password=p dbname=messenger sslmode=disable"
	if dsn != want {
		t.Errorf("DSN = %q, want %q", dsn, want)
	}
}
