package config

import (
	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces the environment variables this package reads,
// e.g. SECUREDRIVE_S3_BUCKET.
const envPrefix = "securedrive"

// parseEnv overlays Config with values from SECUREDRIVE_* environment
// variables. Variables that are not set leave the corresponding fields
// untouched, so the overlay composes with defaults and the JSON file.
// Panics on malformed values (caller should recover if desired).
func parseEnv(cfg *Config) {
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		panic(err)
	}
}
