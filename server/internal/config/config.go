package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration, loaded from environment
// variables with sane defaults. There is no file-format parser here: the
// listen address and store connection string are start-time constants,
// supplied however the deploying environment sees fit.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	TLS      TLSConfig
	Admin    AdminConfig
}

// ServerConfig holds listener configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds the persistence store's connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// TLSConfig holds the server's PEM-encoded certificate and private key
// paths, verified to match at bootstrap.
type TLSConfig struct {
	CertPath string
	KeyPath  string
}

// AdminConfig controls whether the admin channel reads RESET/SHUTDOWN from
// the process's standard input. Enabled unless ADMIN_STDIN is "false".
type AdminConfig struct {
	Stdin bool
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 12345),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Database: getEnv("DB_NAME", "messenger"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		TLS: TLSConfig{
			CertPath: getEnv("TLS_CERT_PATH", "server.crt"),
			KeyPath:  getEnv("TLS_KEY_PATH", "server.key"),
		},
		Admin: AdminConfig{
			Stdin: getEnv("ADMIN_STDIN", "true") != "false",
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// DSN renders the database connection string lib/pq expects.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// String returns a redacted representation of the config, safe to log.
func (c *Config) String() string {
	return fmt.Sprintf(
		"listen=%s:%d db=postgres://%s@%s:%d/%s tls_cert=%s",
		c.Server.Host, c.Server.Port,
		c.Database.User, c.Database.Host, c.Database.Port, c.Database.Database,
		c.TLS.CertPath,
	)
}
