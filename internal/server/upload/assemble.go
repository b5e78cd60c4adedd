package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/dmitrijs2005/chunkstore/internal/filex"
	"github.com/dmitrijs2005/chunkstore/internal/server/metrics"
	"github.com/google/renameio"
)

type chunkFile struct {
	index int
	path  string
}

// scanChunks lists the chunks of n in dir ordered by numeric index.
// A missing directory yields no chunks.
func scanChunks(dir string, n Names) ([]chunkFile, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	var chunks []chunkFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		idx, ok := n.chunkIndex(e.Name())
		if !ok {
			continue
		}
		chunks = append(chunks, chunkFile{index: idx, path: filepath.Join(dir, e.Name())})
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].index < chunks[j].index })
	return chunks, nil
}

// selectChunks picks indices 0..total-1 from a sorted scan, reporting
// false when any of them is missing.
func selectChunks(chunks []chunkFile, total int) ([]chunkFile, bool) {
	parts := make([]chunkFile, 0, min(total, len(chunks)))
	for _, c := range chunks {
		if c.index >= total {
			break
		}
		if c.index == len(parts) {
			parts = append(parts, c)
		}
	}
	return parts, len(parts) == total
}

// assemble concatenates the chunks into the final file, publishes it
// atomically and removes the chunks. Must be called with the file lock held.
func (s *Service) assemble(ctx context.Context, submissionID, dir, original string, n Names, total int) (final string, err error) {
	start := s.now()
	final = n.Final()
	var size int64
	defer func() {
		result := metrics.ResultOK
		if err != nil {
			result = metrics.ResultError
		}
		s.metrics.Assembled(result, size, s.now().Sub(start))
	}()

	chunks, err := scanChunks(dir, n)
	if err != nil {
		return "", err
	}
	parts, ok := selectChunks(chunks, total)
	if !ok {
		return "", fmt.Errorf("assemble %s: have %d of %d chunks", final, len(parts), total)
	}

	finalPath := filepath.Join(dir, final)
	if err := concatenate(finalPath, parts); err != nil {
		return "", err
	}

	for _, c := range chunks {
		if _, err := filex.RemoveIfExists(c.path); err != nil {
			s.logger.Warn(ctx, "failed to remove chunk after assembly", "chunk", filepath.Base(c.path), "error", err)
		}
	}

	md, err := s.record(ctx, submissionID, dir, original, final)
	if err != nil {
		return "", err
	}
	size = md.Size

	if err := s.uploads.MarkCompleted(ctx, submissionID, n.FileKey(), final, md.Size, s.now()); err != nil {
		return "", fmt.Errorf("mark upload completed: %w", err)
	}

	s.archive(ctx, submissionID, final, finalPath)
	return final, nil
}

func concatenate(finalPath string, parts []chunkFile) error {
	pf, err := renameio.TempFile(filepath.Dir(finalPath), finalPath)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", filepath.Base(finalPath), err)
	}
	defer pf.Cleanup()

	for _, c := range parts {
		if err := appendFile(pf, c.path); err != nil {
			return err
		}
	}
	if err := pf.Chmod(0o640); err != nil {
		return fmt.Errorf("chmod %s: %w", filepath.Base(finalPath), err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("publish %s: %w", filepath.Base(finalPath), err)
	}
	return nil
}

func appendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open chunk: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy chunk %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Service) archive(ctx context.Context, submissionID, final, path string) {
	if s.archiver == nil {
		return
	}
	key := archiveKey(submissionID, final)
	if err := s.archiver.Put(ctx, key, path); err != nil {
		s.metrics.ArchiveFailed("put")
		s.logger.Error(ctx, "failed to archive file", "key", key, "error", err)
		return
	}
	s.logger.Debug(ctx, "archived file", "key", key)
}
