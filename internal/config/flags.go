package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/securedrive/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   application directory
//	-d string   ledger database DSN (sqlite file path)
//	-s string   staging directory
//	-l string   log file path
//	-i int      progress publish interval, seconds
//	-u string   S3 access key
//	-p string   S3 secret key
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - The interval flag is accepted as an integer in seconds and converted to
//     a time.Duration value.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-l", "-i", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.AppDir, "a", config.AppDir, "application directory")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "ledger database DSN")
	fs.StringVar(&config.StagingDir, "s", config.StagingDir, "staging directory")
	fs.StringVar(&config.LogFile, "l", config.LogFile, "log file path")

	progressInterval := fs.Int("i", int(config.ProgressInterval.Seconds()), "progress publish interval (in seconds)")

	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket name")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ProgressInterval = time.Duration(*progressInterval) * time.Second
}
