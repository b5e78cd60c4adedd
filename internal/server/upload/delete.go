package upload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"github.com/dmitrijs2005/chunkstore/internal/filex"
	"github.com/dmitrijs2005/chunkstore/internal/server/metrics"
)

// DeleteResult lists what a Delete removed.
type DeleteResult struct {
	Chunks   []string
	Metadata bool
	File     bool
	// FinalFilename is the assembled filename derived from the original name.
	FinalFilename string
}

// Empty reports whether nothing was removed.
func (r DeleteResult) Empty() bool {
	return len(r.Chunks) == 0 && !r.Metadata && !r.File
}

// String is the human-readable outcome returned to clients.
func (r DeleteResult) String() string {
	switch {
	case r.File:
		return fmt.Sprintf("File %s Deleted", r.FinalFilename)
	case r.Metadata:
		return fmt.Sprintf("Metadata %s Deleted", MetadataName(r.FinalFilename))
	case len(r.Chunks) > 0:
		return fmt.Sprintf("Chunk %s Deleted", r.Chunks[len(r.Chunks)-1])
	default:
		return ""
	}
}

// Delete removes every chunk, the metadata record and the assembled file
// of original in the submission. It returns common.ErrorNotFound when none
// of them existed.
func (s *Service) Delete(ctx context.Context, submissionID, original string) (DeleteResult, error) {
	dir, err := s.submissionDir(submissionID)
	if err != nil {
		s.metrics.Deleted(metrics.ResultError)
		return DeleteResult{}, err
	}

	n := NewNames(original)
	unlock := s.lock(submissionID, n)
	defer unlock()

	res, err := s.deleteLocked(ctx, submissionID, dir, n)
	switch {
	case err != nil:
		s.metrics.Deleted(metrics.ResultError)
		return res, err
	case res.Empty():
		s.metrics.Deleted(metrics.ResultNotFound)
		s.logger.Warn(ctx, "nothing to delete", "submission", submissionID, "name", original)
		return res, fmt.Errorf("%w: %s", common.ErrorNotFound, original)
	}

	s.metrics.Deleted(metrics.ResultOK)
	return res, nil
}

func (s *Service) deleteLocked(ctx context.Context, submissionID, dir string, n Names) (DeleteResult, error) {
	res := DeleteResult{FinalFilename: n.Final()}

	chunks, err := scanChunks(dir, n)
	if err != nil {
		return res, err
	}
	for _, c := range chunks {
		removed, err := filex.RemoveIfExists(c.path)
		if err != nil {
			return res, err
		}
		if removed {
			name := filepath.Base(c.path)
			res.Chunks = append(res.Chunks, name)
			s.logger.Info(ctx, "deleted chunk", "submission", submissionID, "chunk", name)
		}
	}

	if res.Metadata, err = filex.RemoveIfExists(filepath.Join(dir, n.Metadata())); err != nil {
		return res, err
	}
	if res.Metadata {
		s.logger.Info(ctx, "deleted metadata", "submission", submissionID, "file", n.Metadata())
	}

	if res.File, err = filex.RemoveIfExists(filepath.Join(dir, n.Final())); err != nil {
		return res, err
	}
	if res.File {
		s.logger.Info(ctx, "deleted file", "submission", submissionID, "file", n.Final())
	}

	if err := s.uploads.Delete(ctx, submissionID, n.FileKey()); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return res, fmt.Errorf("forget upload state: %w", err)
	}

	if res.File && s.archiver != nil {
		key := archiveKey(submissionID, n.Final())
		if err := s.archiver.Delete(ctx, key); err != nil {
			s.metrics.ArchiveFailed("delete")
			s.logger.Error(ctx, "failed to delete archived file", "key", key, "error", err)
		}
	}

	return res, nil
}
