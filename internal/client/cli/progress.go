package cli

import (
	"fmt"

	"github.com/dmitrijs2005/chunkstore/internal/client/uploader"
	"github.com/dustin/go-humanize"
)

// progressFor returns a callback that redraws one status line per file, or
// nil when progress is disabled.
func (a *App) progressFor(name string) uploader.Progress {
	if a.progress == nil {
		return nil
	}
	return func(sent, total int64) {
		pct := 100
		if total > 0 {
			pct = int(sent * 100 / total)
		}
		fmt.Fprintf(a.progress, "\r%s %s / %s (%d%%)", name,
			humanize.IBytes(uint64(sent)), humanize.IBytes(uint64(total)), pct)
	}
}

func (a *App) endProgress() {
	if a.progress != nil {
		fmt.Fprintln(a.progress)
	}
}
