package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/chunkstore/internal/flagx"
	"github.com/dmitrijs2005/chunkstore/internal/timex"
	"github.com/dustin/go-humanize"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// accept "3s" or integer nanoseconds, chunk_size accepts "8MiB".
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	ChunkSize      string         `json:"chunk_size"`
	Token          string         `json:"token"`
	SecretKey      string         `json:"secret_key"`
	TokenValidity  timex.Duration `json:"token_validity"`
	RequestTimeout timex.Duration `json:"request_timeout"`
}

// parseJson overlays Config with values loaded from the JSON file given by
// -c or -config. Keys missing from the file keep their value. Panics on
// read or unmarshal errors.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.ChunkSize != "" {
		size, err := humanize.ParseBytes(jc.ChunkSize)
		if err != nil {
			panic(err)
		}
		cfg.ChunkSize = int64(size)
	}
	if jc.Token != "" {
		cfg.Token = jc.Token
	}
	if jc.SecretKey != "" {
		cfg.SecretKey = jc.SecretKey
	}
	if jc.TokenValidity.Duration != 0 {
		cfg.TokenValidity = jc.TokenValidity.Duration
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}
