package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/chunkstore/internal/client/config"
	"github.com/dmitrijs2005/chunkstore/internal/client/uploader"
	"golang.org/x/term"
)

// ErrUsage is returned for unknown commands and wrong argument counts.
var ErrUsage = errors.New("usage")

// Test seams for the terminal.
var (
	isTerminal   = term.IsTerminal
	readPassword = term.ReadPassword
)

type App struct {
	config *config.Config
	client *uploader.Client

	stdout io.Writer
	stderr io.Writer

	// progress is nil when stderr is not a terminal.
	progress io.Writer
}

func NewApp(c *config.Config) (*App, error) {
	client, err := uploader.New(uploader.Options{
		ServerURL: c.ServerURL,
		Token:     c.Token,
		ChunkSize: c.ChunkSize,
		Timeout:   c.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	a := &App{config: c, client: client, stdout: os.Stdout, stderr: os.Stderr}
	if isTerminal(int(os.Stderr.Fd())) {
		a.progress = os.Stderr
	}
	return a, nil
}

// Run executes one command given as positional arguments.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]

	var err error
	switch cmd {
	case "upload":
		err = a.upload(ctx, rest)
	case "delete":
		err = a.delete(ctx, rest)
	case "get":
		err = a.get(ctx, rest)
	case "token":
		err = a.token(rest)
	case "help":
		a.usage()
		return nil
	default:
		fmt.Fprintln(a.stderr, "Unknown command:", cmd)
		err = ErrUsage
	}

	if errors.Is(err, ErrUsage) {
		a.usage()
	}
	return err
}

func (a *App) usage() {
	fmt.Fprintln(a.stderr, `Usage: cli [flags] <command> [args]

Commands:
  upload <sub_id> <file>...
  delete <sub_id> <name>
  get <sub_id> <filename> [dst]
  token <sub_id>`)
}
