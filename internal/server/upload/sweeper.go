package upload

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"github.com/dmitrijs2005/chunkstore/internal/logging"
)

// SweepStale removes partial uploads whose last chunk arrived more than
// ttl ago and returns how many were removed. Completed uploads are kept.
func (s *Service) SweepStale(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := s.now().Add(-ttl)
	stale, err := s.uploads.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, u := range stale {
		ok, err := s.sweepOne(ctx, u.SubmissionID, u.OriginalName, cutoff)
		if err != nil {
			s.logger.Error(ctx, "failed to sweep upload", "submission", u.SubmissionID, "name", u.OriginalName, "error", err)
			continue
		}
		if ok {
			swept++
		}
	}
	s.metrics.Swept(swept)
	return swept, nil
}

// sweepOne re-checks the upload under its lock; a chunk may have arrived
// since ListStale.
func (s *Service) sweepOne(ctx context.Context, submissionID, original string, cutoff time.Time) (bool, error) {
	dir, err := s.submissionDir(submissionID)
	if err != nil {
		return false, err
	}

	n := NewNames(original)
	unlock := s.lock(submissionID, n)
	defer unlock()

	u, err := s.uploads.Get(ctx, submissionID, n.FileKey())
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if u.Completed() || !u.UpdatedAt.Before(cutoff) {
		return false, nil
	}

	res, err := s.deleteLocked(ctx, submissionID, dir, n)
	if err != nil {
		return false, err
	}
	s.logger.Info(ctx, "swept stale upload",
		"submission", submissionID, "name", original, "chunks", len(res.Chunks), "last_chunk_at", u.UpdatedAt)
	return true, nil
}

// Sweeper runs SweepStale on a fixed interval.
type Sweeper struct {
	svc      *Service
	ttl      time.Duration
	interval time.Duration
	logger   logging.Logger
}

func NewSweeper(svc *Service, ttl, interval time.Duration, logger logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Sweeper{svc: svc, ttl: ttl, interval: interval, logger: logger.With("module", "sweeper")}
}

// Run sweeps until ctx is cancelled. A non-positive ttl or interval
// disables it.
func (w *Sweeper) Run(ctx context.Context) {
	if w.ttl <= 0 || w.interval <= 0 {
		w.logger.Info(ctx, "stale upload sweeper disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.svc.SweepStale(ctx, w.ttl)
			if err != nil {
				w.logger.Error(ctx, "sweep failed", "error", err)
				continue
			}
			if n > 0 {
				w.logger.Info(ctx, "swept stale uploads", "count", n)
			}
		}
	}
}
