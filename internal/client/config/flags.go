package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/flagx"
	"github.com/dustin/go-humanize"
)

// ValueFlags lists the flags that take a value, so the CLI can tell its
// positional arguments apart.
var ValueFlags = []string{"-a", "-k", "-n", "-s", "-t", "-w", "-c", "-config"}

// parseFlags populates selected Config fields from command-line flags.
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with positional arguments.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-k", "-n", "-s", "-t", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "server base URL")
	chunkSize := fs.String("k", humanize.IBytes(uint64(cfg.ChunkSize)), "chunk size")
	fs.StringVar(&cfg.Token, "n", cfg.Token, "submission token")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "secret key for minting tokens")
	tokenValidity := fs.Int("t", int(cfg.TokenValidity.Minutes()), "token validity (in minutes)")
	requestTimeout := fs.Int("w", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["k"] {
		size, err := humanize.ParseBytes(*chunkSize)
		if err != nil {
			panic(err)
		}
		cfg.ChunkSize = int64(size)
	}
	if set["t"] {
		cfg.TokenValidity = time.Duration(*tokenValidity) * time.Minute
	}
	if set["w"] {
		cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
	}
}
