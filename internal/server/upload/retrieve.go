package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"github.com/dmitrijs2005/chunkstore/internal/filex"
	"github.com/dmitrijs2005/chunkstore/internal/server/metrics"
)

// File is an open stored file. The caller closes it.
type File struct {
	*os.File
	// Name is the suggested download name.
	Name    string
	Size    int64
	ModTime time.Time
}

// Open returns the stored file root/submissionID/filename. Anything that
// does not resolve to a regular file inside the storage root, symlinks
// included, is reported as common.ErrorNotFound.
func (s *Service) Open(ctx context.Context, submissionID, filename string) (*File, error) {
	f, err := s.open(submissionID, filename)
	if err != nil {
		s.metrics.Retrieved(metrics.ResultNotFound)
		s.logger.Warn(ctx, "file not served", "submission", submissionID, "filename", filename, "reason", err)
		return nil, fmt.Errorf("%w: %s", common.ErrorNotFound, filename)
	}
	s.metrics.Retrieved(metrics.ResultOK)
	return f, nil
}

func (s *Service) open(submissionID, filename string) (*File, error) {
	if submissionID == "" || filename == "" {
		return nil, errors.New("empty path component")
	}

	resolved, err := filepath.EvalSymlinks(filepath.Join(s.root, submissionID, filename))
	if err != nil {
		return nil, err
	}
	if !filex.Within(s.realRoot, resolved) {
		return nil, errors.New("outside storage root")
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		f.Close()
		return nil, errors.New("not a regular file")
	}

	return &File{File: f, Name: filepath.Base(filename), Size: fi.Size(), ModTime: fi.ModTime()}, nil
}
