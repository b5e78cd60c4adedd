// Package config handles configuration for the server component,
// including defaults, JSON overlay, environment and command-line flags.
package config

import "time"

// Config holds runtime settings for the chunkstore server.
//
// Fields:
//   - EndpointAddrHTTP: bind address of the upload/delete/getfile endpoints.
//   - EndpointAddrGRPC: bind address of the gRPC health endpoint.
//   - StorageRoot: directory holding one subdirectory per submission.
//   - DatabaseDSN: upload-state store. Empty keeps state in memory;
//     postgres:// uses pgx, sqlite:// or file: uses embedded SQLite.
//   - SecretKey: HMAC secret for submission tokens (HS256). Empty disables auth.
//   - TokenValidityDuration: lifetime of tokens minted by the CLI.
//   - MaxChunkSize: upper bound of one upload request body, in bytes.
//   - MaxChunks: upper bound of the chunk count a client may declare.
//   - StaleUploadTTL / SweepInterval: partial uploads idle longer than the
//     TTL are removed by a sweep every interval. Zero disables sweeping.
//   - S3RootUser / S3RootPassword / S3Bucket / S3Region / S3BaseEndpoint:
//     archive mirror. An empty bucket disables it.
//   - LogLevel / LogFormat: slog level name and "json" or "text".
type Config struct {
	EndpointAddrHTTP      string
	EndpointAddrGRPC      string
	StorageRoot           string
	DatabaseDSN           string
	SecretKey             string
	TokenValidityDuration time.Duration
	MaxChunkSize          int64
	MaxChunks             int
	StaleUploadTTL        time.Duration
	SweepInterval         time.Duration
	S3RootUser            string
	S3RootPassword        string
	S3Bucket              string
	S3Region              string
	S3BaseEndpoint        string
	LogLevel              string
	LogFormat             string
}

// LoadDefaults populates Config with development defaults: in-memory state,
// no auth, no archive.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.EndpointAddrGRPC = ":50051"
	c.StorageRoot = "./uploads"
	c.DatabaseDSN = ""
	c.SecretKey = ""
	c.TokenValidityDuration = 24 * time.Hour
	c.MaxChunkSize = 64 << 20
	c.MaxChunks = 10000
	c.StaleUploadTTL = 24 * time.Hour
	c.SweepInterval = 10 * time.Minute
	c.S3RootUser = ""
	c.S3RootPassword = ""
	c.S3Bucket = ""
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = ""
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// AuthEnabled reports whether requests must carry a submission token.
func (c *Config) AuthEnabled() bool {
	return c.SecretKey != ""
}

// ArchiveEnabled reports whether assembled files are mirrored to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Bucket != ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
