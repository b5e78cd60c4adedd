package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/chunkstore/internal/server/auth"
	"github.com/dustin/go-humanize"
	"github.com/google/renameio"
)

func (a *App) upload(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: upload <sub_id> <file>...", ErrUsage)
	}
	sub := args[0]

	for _, path := range args[1:] {
		final, err := a.client.Upload(ctx, sub, path, a.progressFor(filepath.Base(path)))
		a.endProgress()
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, final)
	}
	return nil
}

func (a *App) delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: delete <sub_id> <name>", ErrUsage)
	}

	msg, err := a.client.Delete(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, msg)
	return nil
}

func (a *App) get(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: get <sub_id> <filename> [dst]", ErrUsage)
	}
	sub, filename := args[0], args[1]

	dst := filename
	if len(args) == 3 {
		dst = args[2]
	}

	if dst == "-" {
		_, err := a.client.Download(ctx, sub, filename, a.stdout)
		return err
	}

	// Download next to dst and rename, so a failed transfer leaves no
	// partial file behind.
	t, err := renameio.TempFile(filepath.Dir(dst), dst)
	if err != nil {
		return err
	}
	defer t.Cleanup()

	n, err := a.client.Download(ctx, sub, filename, t)
	if err != nil {
		return err
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "%s (%s)\n", dst, humanize.IBytes(uint64(n)))
	return nil
}

func (a *App) token(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: token <sub_id>", ErrUsage)
	}

	secret := []byte(a.config.SecretKey)
	if len(secret) == 0 {
		var err error
		if secret, err = a.promptSecret(); err != nil {
			return err
		}
	}

	tok, err := auth.GenerateToken(args[0], secret, a.config.TokenValidity)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, tok)
	return nil
}

// promptSecret reads the secret key from an interactive stdin.
func (a *App) promptSecret() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return nil, fmt.Errorf("%w: secret key required (-s)", ErrUsage)
	}

	fmt.Fprint(a.stderr, "Secret key: ")
	secret, err := readPassword(fd)
	fmt.Fprintln(a.stderr)
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret key", ErrUsage)
	}
	return secret, nil
}
