package config

import (
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

const envPrefix = "CHUNKSTORE_"

var lookupEnv = os.LookupEnv

// parseEnv overlays CHUNKSTORE_* environment variables. Durations use
// time.ParseDuration syntax, sizes humanize syntax ("64MiB"). Malformed
// values panic.
func parseEnv(config *Config) {
	envString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	envString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	envString(&config.StorageRoot, "STORAGE_ROOT")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.SecretKey, "SECRET_KEY")
	envDuration(&config.TokenValidityDuration, "TOKEN_VALIDITY")
	envDuration(&config.StaleUploadTTL, "STALE_UPLOAD_TTL")
	envDuration(&config.SweepInterval, "SWEEP_INTERVAL")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	envString(&config.LogLevel, "LOG_LEVEL")
	envString(&config.LogFormat, "LOG_FORMAT")

	if v, ok := lookupEnv(envPrefix + "MAX_CHUNK_SIZE"); ok {
		size, err := humanize.ParseBytes(v)
		if err != nil {
			panic(err)
		}
		config.MaxChunkSize = int64(size)
	}
	if v, ok := lookupEnv(envPrefix + "MAX_CHUNKS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		config.MaxChunks = n
	}
}

func envString(dst *string, name string) {
	if v, ok := lookupEnv(envPrefix + name); ok {
		*dst = v
	}
}

func envDuration(dst *time.Duration, name string) {
	v, ok := lookupEnv(envPrefix + name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}
