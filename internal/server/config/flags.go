package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/flagx"
	"github.com/dustin/go-humanize"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-r string   gRPC health bind address (e.g., ":50051")
//	-f string   storage root directory
//	-d string   upload-state DSN (empty: in memory)
//	-s string   token HMAC secret key (empty: auth disabled)
//	-t int      token validity, minutes
//	-m string   max chunk size (e.g., "64MiB")
//	-n int      max chunks per file
//	-x int      stale upload TTL, minutes (0 disables the sweeper)
//	-w int      sweep interval, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name (empty: no archive)
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-l string   log level (debug, info, warn, error)
//	-o string   log format (json, text)
//
// Duration flags are accepted as integers in minutes.
// Duration and size flags only override when given.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-r", "-f", "-d", "-s", "-t", "-m", "-n", "-x", "-w", "-u", "-p", "-b", "-g", "-e", "-l", "-o",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port to run server")
	fs.StringVar(&config.EndpointAddrGRPC, "r", config.EndpointAddrGRPC, "gRPC health address and port")
	fs.StringVar(&config.StorageRoot, "f", config.StorageRoot, "storage root directory")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token validity (in minutes)")
	maxChunkSize := fs.String("m", humanize.IBytes(uint64(config.MaxChunkSize)), "max chunk size")
	fs.IntVar(&config.MaxChunks, "n", config.MaxChunks, "max chunks per file")
	staleTTL := fs.Int("x", int(config.StaleUploadTTL.Minutes()), "stale upload ttl (in minutes)")
	sweepInterval := fs.Int("w", int(config.SweepInterval.Minutes()), "sweep interval (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "o", config.LogFormat, "log format")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// converted flags only override when given, so "90s" from JSON survives
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["m"] {
		size, err := humanize.ParseBytes(*maxChunkSize)
		if err != nil {
			panic(err)
		}
		config.MaxChunkSize = int64(size)
	}
	if set["t"] {
		config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
	}
	if set["x"] {
		config.StaleUploadTTL = time.Duration(*staleTTL) * time.Minute
	}
	if set["w"] {
		config.SweepInterval = time.Duration(*sweepInterval) * time.Minute
	}
}
