// Package config loads runtime configuration for the chunkstore CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the chunkstore HTTP endpoint
//	-k string   chunk size, e.g. "8MiB"
//	-n string   submission token sent as Bearer auth
//	-s string   secret key used by the token command
//	-t int      validity of minted tokens, minutes
//	-w int      per-request timeout, seconds
package config
