package upload

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"github.com/dmitrijs2005/chunkstore/internal/filex"
	"github.com/dmitrijs2005/chunkstore/internal/server/models"
	"github.com/google/renameio"
)

// ChunkRequest is one chunk of an upload.
type ChunkRequest struct {
	SubmissionID string
	// Name is the original filename as sent by the client.
	Name  string
	Index int
	// Total is the declared number of chunks. Nil means the whole file is
	// sent in one request.
	Total *int
	Body  io.Reader
}

// Receive stores one chunk and assembles the file once every chunk is on
// disk. It returns the assembled filename, or "" while chunks are missing.
func (s *Service) Receive(ctx context.Context, req ChunkRequest) (string, error) {
	dir, err := s.submissionDir(req.SubmissionID)
	if err != nil {
		return "", err
	}

	index, total := req.Index, 1
	if req.Total == nil {
		index = 0
	} else {
		total = *req.Total
		if total <= 0 || index < 0 || index >= total {
			return "", fmt.Errorf("%w: chunk %d of %d", common.ErrInvalidChunk, index, total)
		}
		if total > s.maxChunks {
			return "", fmt.Errorf("%w: %d chunks declared, at most %d allowed", common.ErrInvalidChunk, total, s.maxChunks)
		}
	}

	n := NewNames(req.Name)
	unlock := s.lock(req.SubmissionID, n)
	defer unlock()

	fresh, err := s.trackChunk(ctx, req.SubmissionID, req.Name, n, total)
	if err != nil {
		return "", err
	}
	if err := filex.EnsureDir(dir); err != nil {
		return "", err
	}
	if fresh {
		if err := s.discardChunks(ctx, req.SubmissionID, dir, n); err != nil {
			return "", err
		}
	}

	chunk := n.Chunk(index)
	written, err := writeAtomically(filepath.Join(dir, chunk), req.Body)
	if err != nil {
		return "", err
	}
	s.metrics.ChunkReceived(written)
	s.logger.Info(ctx, "uploaded chunk",
		"submission", req.SubmissionID, "chunk", chunk, "index", index, "total", total, "bytes", written)

	if req.Total != nil {
		chunks, err := scanChunks(dir, n)
		if err != nil {
			return "", err
		}
		if _, ok := selectChunks(chunks, total); !ok {
			return "", nil
		}
	}

	return s.assemble(ctx, req.SubmissionID, dir, req.Name, n, total)
}

// trackChunk checks the declared total against the upload state, starting
// a new cycle when there is none or the previous one completed. It reports
// whether a new cycle was started.
func (s *Service) trackChunk(ctx context.Context, submissionID, original string, n Names, total int) (bool, error) {
	now := s.now()
	fresh := false

	err := s.uploads.Track(ctx, submissionID, n.FileKey(), func(u *models.Upload) (*models.Upload, error) {
		switch {
		case u == nil, u.Completed():
			fresh = true
			return &models.Upload{
				SubmissionID: submissionID,
				FileKey:      n.FileKey(),
				OriginalName: original,
				TotalChunks:  total,
				Status:       models.UploadStatusReceiving,
				CreatedAt:    now,
				UpdatedAt:    now,
			}, nil
		case u.TotalChunks != total:
			return nil, fmt.Errorf("%w: declared %d, upload started with %d", common.ErrChunkCountMismatch, total, u.TotalChunks)
		}
		next := *u
		next.UpdatedAt = now
		return &next, nil
	})
	if err != nil {
		return false, fmt.Errorf("track upload state: %w", err)
	}
	return fresh, nil
}

// discardChunks removes chunks of n left behind by an earlier cycle whose
// state was lost, so they never count towards the new one.
func (s *Service) discardChunks(ctx context.Context, submissionID, dir string, n Names) error {
	chunks, err := scanChunks(dir, n)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		removed, err := filex.RemoveIfExists(c.path)
		if err != nil {
			return err
		}
		if removed {
			s.logger.Warn(ctx, "discarded chunk from an earlier upload", "submission", submissionID, "chunk", filepath.Base(c.path))
		}
	}
	return nil
}

// writeAtomically streams r into path through a temp file in the same
// directory. The temp name starts with a dot and never matches a chunk.
func writeAtomically(path string, r io.Reader) (int64, error) {
	pf, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return 0, fmt.Errorf("create temp file for %s: %w", filepath.Base(path), err)
	}
	defer pf.Cleanup()

	written, err := io.Copy(pf, r)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := pf.Chmod(0o640); err != nil {
		return 0, fmt.Errorf("chmod %s: %w", filepath.Base(path), err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return 0, fmt.Errorf("publish %s: %w", filepath.Base(path), err)
	}
	return written, nil
}
