// Package config loads runtime configuration for the SecureDrive CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Environment variables with the SECUREDRIVE_ prefix (see parseEnv).
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   application directory (key file, staging, ledger live here)
//	-d string   ledger database DSN (sqlite file path)
//	-s string   staging directory for encrypted containers
//	-l string   log file path
//	-i int      progress publish interval (seconds)
//	-u string   S3 access key
//	-p string   S3 secret key
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "app_dir": "/home/user/.securedrive",
//	  "chunk_size": 8192,
//	  "progress_interval": "1s",
//	  "s3_bucket": "vault"
//	}
//
// Fields omitted from the JSON file keep their current values, so a partial
// file overlays cleanly on the defaults.
//
// Paths that are not set explicitly (database, staging directory, log file)
// are derived from the application directory after all sources are applied.
package config
