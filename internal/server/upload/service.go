// Package upload reassembles files sent as independently transmitted
// chunks. Every file lives in a per-submission directory below a storage
// root; chunk, assembled-file and metadata names are derived from the
// original filename alone (see Names).
package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"github.com/dmitrijs2005/chunkstore/internal/filex"
	"github.com/dmitrijs2005/chunkstore/internal/logging"
	"github.com/dmitrijs2005/chunkstore/internal/server/metrics"
	"github.com/dmitrijs2005/chunkstore/internal/server/repositories/uploads"
	"github.com/im7mortal/kmutex"
)

// Archiver mirrors assembled files to secondary storage. Keys have the
// form "<submission_id>/<final_filename>".
type Archiver interface {
	Put(ctx context.Context, key, path string) error
	Delete(ctx context.Context, key string) error
}

type Options struct {
	// Root is the storage root. It is created if missing.
	Root string

	Logger  logging.Logger
	Uploads uploads.Repository

	// MaxChunks caps the declared number of chunks of one file.
	// Zero means DefaultMaxChunks.
	MaxChunks int

	// Archiver and Metrics are optional.
	Archiver Archiver
	Metrics  *metrics.Metrics
}

// DefaultMaxChunks allows 10000 chunks per file.
const DefaultMaxChunks = 10000

// Service implements receive, assemble, delete and retrieve on top of the
// storage root.
type Service struct {
	root     string
	realRoot string

	logger   logging.Logger
	uploads  uploads.Repository
	archiver Archiver
	metrics  *metrics.Metrics
	locks    *kmutex.Kmutex

	maxChunks int

	now func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Root == "" {
		return nil, errors.New("storage root is required")
	}
	if opts.Uploads == nil {
		return nil, errors.New("upload repository is required")
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := filex.EnsureDir(root); err != nil {
		return nil, err
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	maxChunks := opts.MaxChunks
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}

	return &Service{
		root:     root,
		realRoot: realRoot,
		logger:   logger.With("module", "upload"),
		uploads:  opts.Uploads,
		archiver: opts.Archiver,
		metrics:  opts.Metrics,
		locks:    kmutex.New(),

		maxChunks: maxChunks,

		now: time.Now,
	}, nil
}

// Root returns the absolute storage root.
func (s *Service) Root() string {
	return s.root
}

// submissionDir validates id and returns its directory. Nothing is
// created. The deepest existing part of the path is resolved, so a
// symlink leading out of the storage root is rejected.
func (s *Service) submissionDir(id string) (string, error) {
	if id == "" || strings.HasPrefix(id, "/") || strings.HasPrefix(id, `\`) {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidIdentifier, id)
	}
	dir := filepath.Join(s.root, id)
	if !filex.StrictlyWithin(s.root, dir) {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidIdentifier, id)
	}

	existing := dir
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			inside := filex.Within(s.realRoot, resolved)
			if existing == dir {
				inside = filex.StrictlyWithin(s.realRoot, resolved)
			}
			if !inside {
				return "", fmt.Errorf("%w: %q leaves the storage root", common.ErrInvalidIdentifier, id)
			}
			return dir, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %q: %v", common.ErrInvalidIdentifier, id, err)
		}
		if existing == s.root {
			return dir, nil
		}
		existing = filepath.Dir(existing)
	}
}

// lock serialises work on one file of one submission.
func (s *Service) lock(submissionID string, n Names) func() {
	key := submissionID + "\x00" + n.FileKey()
	s.locks.Lock(key)
	return func() { s.locks.Unlock(key) }
}

func archiveKey(submissionID, final string) string {
	return filepath.ToSlash(filepath.Join(submissionID, final))
}
