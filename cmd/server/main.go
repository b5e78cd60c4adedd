package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/chunkstore/internal/server"
	"github.com/dmitrijs2005/chunkstore/internal/server/config"
)

type runner interface {
	Run(ctx context.Context)
}

// newApp is a seam for tests.
var newApp = func(c *config.Config) (runner, error) {
	return server.NewApp(c)
}

// run returns the process exit code.
func run(ctx context.Context) int {
	cfg := config.LoadConfig()
	app, err := newApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	app.Run(ctx)
	return 0
}

func main() {
	os.Exit(run(context.Background()))
}
