// Package uploads persists per-file upload state: the chunk total declared
// on the first chunk, whether the file has been assembled, and its final
// name and size.
package uploads

import (
	"context"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/server/models"
)

// TrackFunc receives the current row (nil when there is none) and returns
// the row to store, or nil to leave the store unchanged. An error aborts
// the update and is returned from Track as is.
type TrackFunc func(cur *models.Upload) (*models.Upload, error)

// Repository stores upload state keyed by (submission id, file key).
// Get and Delete return common.ErrorNotFound for unknown keys.
type Repository interface {
	Get(ctx context.Context, submissionID, fileKey string) (*models.Upload, error)
	Upsert(ctx context.Context, u *models.Upload) error
	// Track reads and rewrites one row as a single unit, so concurrent
	// writers on other instances cannot interleave between the two.
	Track(ctx context.Context, submissionID, fileKey string, fn TrackFunc) error
	MarkCompleted(ctx context.Context, submissionID, fileKey, finalFilename string, size int64, at time.Time) error
	Delete(ctx context.Context, submissionID, fileKey string) error
	// ListStale returns uploads still receiving chunks whose last update is
	// before the given time.
	ListStale(ctx context.Context, before time.Time) ([]*models.Upload, error)
}
