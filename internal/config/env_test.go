package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parseEnv_OverlaysSetVariables(t *testing.T) {
	t.Setenv("SECUREDRIVE_S3_BUCKET", "archive")
	t.Setenv("SECUREDRIVE_PROGRESS_INTERVAL", "5s")
	t.Setenv("SECUREDRIVE_CHUNK_SIZE", "4096")

	cfg := &Config{
		S3Bucket:         "vault",
		S3Region:         "us-east-1",
		ProgressInterval: time.Second,
		ChunkSize:        8192,
	}
	parseEnv(cfg)

	assert.Equal(t, "archive", cfg.S3Bucket)
	assert.Equal(t, 5*time.Second, cfg.ProgressInterval)
	assert.Equal(t, 4096, cfg.ChunkSize)

	// Unset variables leave fields alone.
	assert.Equal(t, "us-east-1", cfg.S3Region)
}

func Test_parseEnv_InvalidValuePanics(t *testing.T) {
	t.Setenv("SECUREDRIVE_CHUNK_SIZE", "not-a-number")

	cfg := &Config{}
	require.Panics(t, func() { parseEnv(cfg) })
}
