// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// MinEncryptionSecretLength is the shortest secret accepted for at-rest encryption.
const MinEncryptionSecretLength = 32

// ErrMissing is returned by Validate when a required variable is unset.
var ErrMissing = errors.New("missing required configuration")

// Config holds the application configuration.
type Config struct {
	// Server settings
	Port string
	Host string

	// Database settings
	DBPath string

	// Brokerage settings
	FlatexBaseURL    string
	FlatexPrincipal  string
	FlatexCredential string
	FlatexProvider   string
	FlatexPlatform   string
	FlatexTimeout    time.Duration
	FlatexRate       float64

	// Session lifecycle
	PingInterval time.Duration
	AuthTimeout  time.Duration
	AuthMethod   string

	// Encrypts stored session values when at least MinEncryptionSecretLength long.
	EncryptionSecret string

	// Chat transport
	MatrixHomeServerURL string
	MatrixAccessToken   string
	MatrixRoomID        string

	// Market data
	OnvistaBaseURL string

	// Bearer token for POST /commands; empty disables the endpoint.
	WebhookToken string

	// Environment
	IsDevelopment bool

	invalid []string
}

// New loads .env if present and creates a new Config with values from
// environment variables or defaults.
func New() *Config {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	c := &Config{
		Port:                getEnv("PORT", "8080"),
		Host:                getEnv("HOST", "localhost"),
		DBPath:              getEnv("DB_PATH", filepath.Join(".flatex-session", "session.db")),
		FlatexBaseURL:       getEnv("FLATEX_BASE_URL", ""),
		FlatexPrincipal:     getEnv("FLATEX_PRINCIPAL", ""),
		FlatexCredential:    getEnv("FLATEX_CREDENTIAL", ""),
		FlatexProvider:      getEnv("FLATEX_PROVIDER", "flatex_at"),
		FlatexPlatform:      getEnv("FLATEX_PLATFORM", "android"),
		AuthMethod:          getEnv("AUTH_METHOD", "pTAN"),
		EncryptionSecret:    getEnv("ENCRYPTION_SECRET", ""),
		MatrixHomeServerURL: getEnv("MATRIX_HOME_SERVER_URL", ""),
		MatrixAccessToken:   getEnv("MATRIX_ACCESS_TOKEN", ""),
		MatrixRoomID:        getEnv("MATRIX_ROOM_ID", ""),
		OnvistaBaseURL:      getEnv("ONVISTA_BASE_URL", "https://api.onvista.de"),
		WebhookToken:        getEnv("WEBHOOK_TOKEN", ""),
		IsDevelopment:       getEnv("ENV", "development") == "development",
	}
	c.FlatexTimeout = c.getDuration("FLATEX_TIMEOUT", 5*time.Second)
	c.PingInterval = c.getDuration("PING_INTERVAL", 5*time.Minute)
	c.AuthTimeout = c.getDuration("AUTH_TIMEOUT", 30*time.Second)
	c.FlatexRate = c.getFloat("FLATEX_RATE", 5)
	return c
}

// Validate reports the first unparsable value or missing required variable.
func (c *Config) Validate() error {
	if len(c.invalid) > 0 {
		return fmt.Errorf("invalid value for %s", c.invalid[0])
	}

	required := []struct{ key, value string }{
		{"FLATEX_BASE_URL", c.FlatexBaseURL},
		{"FLATEX_PRINCIPAL", c.FlatexPrincipal},
		{"FLATEX_CREDENTIAL", c.FlatexCredential},
	}
	if c.MatrixEnabled() {
		required = append(required,
			struct{ key, value string }{"MATRIX_ACCESS_TOKEN", c.MatrixAccessToken},
			struct{ key, value string }{"MATRIX_ROOM_ID", c.MatrixRoomID},
		)
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", ErrMissing, r.key)
		}
	}

	if c.EncryptionSecret != "" && len(c.EncryptionSecret) < MinEncryptionSecretLength {
		return fmt.Errorf("ENCRYPTION_SECRET must be at least %d characters", MinEncryptionSecretLength)
	}
	return nil
}

// MatrixEnabled reports whether the Matrix chat transport is configured.
func (c *Config) MatrixEnabled() bool {
	return c.MatrixHomeServerURL != ""
}

// EncryptionEnabled reports whether stored session values are encrypted.
func (c *Config) EncryptionEnabled() bool {
	return c.EncryptionSecret != ""
}

// Address returns the full address to bind the server to.
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

func (c *Config) getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		c.invalid = append(c.invalid, key)
		return defaultValue
	}
	return d
}

func (c *Config) getFloat(key string, defaultValue float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		c.invalid = append(c.invalid, key)
		return defaultValue
	}
	return f
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
