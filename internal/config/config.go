package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/securedrive/internal/container"
)

// Config holds runtime settings for the SecureDrive CLI.
//
// Fields:
//   - AppDir: application directory holding the key file and, by default,
//     the staging directory, ledger database, and log file.
//   - DatabaseDSN: sqlite file path of the transfer ledger.
//   - StagingDir: where encrypted containers are written before upload.
//   - LogFile: JSON log destination (the terminal stays free for the REPL).
//   - ChunkSize: streaming granularity for encryption, in bytes.
//   - ProgressInterval: how often throughput and ETA are recomputed.
//   - S3AccessKey / S3SecretKey: credentials for the S3-compatible backend.
//   - S3Bucket / S3Region / S3BaseEndpoint: object storage settings.
type Config struct {
	AppDir           string        `envconfig:"APP_DIR"`
	DatabaseDSN      string        `envconfig:"DATABASE_DSN"`
	StagingDir       string        `envconfig:"STAGING_DIR"`
	LogFile          string        `envconfig:"LOG_FILE"`
	ChunkSize        int           `envconfig:"CHUNK_SIZE"`
	ProgressInterval time.Duration `envconfig:"PROGRESS_INTERVAL"`
	S3AccessKey      string        `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey      string        `envconfig:"S3_SECRET_KEY"`
	S3Bucket         string        `envconfig:"S3_BUCKET"`
	S3Region         string        `envconfig:"S3_REGION"`
	S3BaseEndpoint   string        `envconfig:"S3_BASE_ENDPOINT"`
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: The S3 values match a local MinIO dev setup and should be overridden.
func (c *Config) LoadDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	c.AppDir = filepath.Join(home, ".securedrive")
	c.ChunkSize = container.DefaultChunkSize
	c.ProgressInterval = 1 * time.Second
	c.S3AccessKey = "admin"
	c.S3SecretKey = "secretpassword"
	c.S3Bucket = "vault"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
}

// normalize derives the paths that default to locations under AppDir unless
// they were set explicitly by one of the sources.
func (c *Config) normalize() {
	if c.DatabaseDSN == "" {
		c.DatabaseDSN = filepath.Join(c.AppDir, "securedrive.db")
	}
	if c.StagingDir == "" {
		c.StagingDir = filepath.Join(c.AppDir, "staging")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.AppDir, "securedrive.log")
	}
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment, and command-line flags.
// Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	cfg.normalize()
	return cfg
}
