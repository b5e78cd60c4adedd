package uploads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"github.com/dmitrijs2005/chunkstore/internal/server/models"
)

type key struct {
	submissionID string
	fileKey      string
}

// MemoryRepository keeps upload state in process memory. It is the default
// when no database DSN is configured; state does not survive a restart.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[key]models.Upload
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[key]models.Upload)}
}

func (r *MemoryRepository) Get(ctx context.Context, submissionID, fileKey string) (*models.Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.rows[key{submissionID, fileKey}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, u *models.Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{u.SubmissionID, u.FileKey}
	row := *u
	if existing, ok := r.rows[k]; ok {
		row.CreatedAt = existing.CreatedAt
	}
	r.rows[k] = row
	return nil
}

func (r *MemoryRepository) Track(ctx context.Context, submissionID, fileKey string, fn TrackFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{submissionID, fileKey}
	var cur *models.Upload
	if u, ok := r.rows[k]; ok {
		cur = &u
	}

	next, err := fn(cur)
	if err != nil || next == nil {
		return err
	}

	row := *next
	if cur != nil {
		row.CreatedAt = cur.CreatedAt
	}
	r.rows[k] = row
	return nil
}

func (r *MemoryRepository) MarkCompleted(ctx context.Context, submissionID, fileKey, finalFilename string, size int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{submissionID, fileKey}
	u, ok := r.rows[k]
	if !ok {
		return common.ErrorNotFound
	}
	u.Status = models.UploadStatusCompleted
	u.FinalFilename = finalFilename
	u.Size = size
	u.UpdatedAt = at
	r.rows[k] = u
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, submissionID, fileKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{submissionID, fileKey}
	if _, ok := r.rows[k]; !ok {
		return common.ErrorNotFound
	}
	delete(r.rows, k)
	return nil
}

func (r *MemoryRepository) ListStale(ctx context.Context, before time.Time) ([]*models.Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Upload
	for _, u := range r.rows {
		if u.Status == models.UploadStatusReceiving && u.UpdatedAt.Before(before) {
			u := u
			result = append(result, &u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	return result, nil
}
