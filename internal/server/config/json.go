package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/chunkstore/internal/flagx"
	"github.com/dmitrijs2005/chunkstore/internal/timex"
	"github.com/dustin/go-humanize"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// "90s" or integer nanoseconds, max_chunk_size accepts "64MiB" or "64000000".
type JsonConfig struct {
	EndpointAddrHTTP      string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC      string         `json:"endpoint_addr_grpc"`
	StorageRoot           string         `json:"storage_root"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	MaxChunkSize          string         `json:"max_chunk_size"`
	MaxChunks             int            `json:"max_chunks"`
	StaleUploadTTL        timex.Duration `json:"stale_upload_ttl"`
	SweepInterval         timex.Duration `json:"sweep_interval"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
	LogLevel              string         `json:"log_level"`
	LogFormat             string         `json:"log_format"`
}

// parseJson overlays values from the JSON file named by -c or -config.
// Keys missing from the file keep their current value. An unreadable file
// or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.StorageRoot, c.StorageRoot)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.TokenValidityDuration.Duration != 0 {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}
	if c.MaxChunkSize != "" {
		size, err := humanize.ParseBytes(c.MaxChunkSize)
		if err != nil {
			panic(err)
		}
		config.MaxChunkSize = int64(size)
	}
	if c.MaxChunks != 0 {
		config.MaxChunks = c.MaxChunks
	}
	if c.StaleUploadTTL.Duration != 0 {
		config.StaleUploadTTL = c.StaleUploadTTL.Duration
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
