// Package config loads client configuration from the environment, with an
// optional .env file for development setups.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything the client needs to talk to the service and
// persist its session.
type Config struct {
	// BaseURL is the service root, e.g. https://news.example.com.
	BaseURL string `env:"NEWSCLIENT_BASE_URL" envDefault:"http://localhost:8080"`
	// Timeout bounds every request.
	Timeout time.Duration `env:"NEWSCLIENT_TIMEOUT" envDefault:"30s"`
	// StorageBackend selects session persistence: "file", "pebble" or
	// "memory".
	StorageBackend string `env:"NEWSCLIENT_STORAGE" envDefault:"file"`
	// StoragePath overrides the session store location. Empty means the
	// backend's default under the user config dir.
	StoragePath string `env:"NEWSCLIENT_STORAGE_PATH"`
	// Passphrase, when set, encrypts persisted session values at rest.
	Passphrase string `env:"NEWSCLIENT_PASSPHRASE"`
	// Debug enables request-level logging.
	Debug bool `env:"NEWSCLIENT_DEBUG"`
}

// Load reads a .env file when present, then parses the environment.
func Load() (Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
