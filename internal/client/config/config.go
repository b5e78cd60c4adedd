package config

import "time"

// Config holds runtime settings for the chunkstore CLI.
//
// Fields:
//   - ServerURL: base URL of the server HTTP endpoint.
//   - ChunkSize: bytes per upload request.
//   - Token: submission token attached to requests, empty for none.
//   - SecretKey / TokenValidity: used by the token command to mint tokens.
//   - RequestTimeout: deadline of one HTTP request.
type Config struct {
	ServerURL      string
	ChunkSize      int64
	Token          string
	SecretKey      string
	TokenValidity  time.Duration
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.ChunkSize = 8 << 20
	c.Token = ""
	c.SecretKey = ""
	c.TokenValidity = 24 * time.Hour
	c.RequestTimeout = 60 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
