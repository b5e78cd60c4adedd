package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"github.com/dmitrijs2005/chunkstore/internal/dbx"
	"github.com/dmitrijs2005/chunkstore/internal/server/models"
)

// SQLRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
// The queries run on both PostgreSQL (pgx) and SQLite.
type SQLRepository struct {
	db       dbx.DBTX
	rowLocks bool
}

// Option configures a SQLRepository.
type Option func(*SQLRepository)

// WithRowLocks makes Track read the row with SELECT ... FOR UPDATE.
// SQLite has no row locks; its write transactions are serialised anyway.
func WithRowLocks() Option {
	return func(r *SQLRepository) { r.rowLocks = true }
}

// NewSQLRepository constructs a repository bound to the given DBTX.
func NewSQLRepository(db dbx.DBTX, opts ...Option) *SQLRepository {
	r := &SQLRepository{db: db}
	for _, o := range opts {
		o(r)
	}
	return r
}

const selectUpload = `SELECT submission_id, file_key, original_name, total_chunks, status, final_filename, size, created_at, updated_at
		FROM uploads WHERE submission_id=$1 AND file_key=$2`

// Get returns the upload row for the key.
func (r *SQLRepository) Get(ctx context.Context, submissionID, fileKey string) (*models.Upload, error) {
	return r.get(ctx, selectUpload, submissionID, fileKey)
}

func (r *SQLRepository) get(ctx context.Context, query, submissionID, fileKey string) (*models.Upload, error) {
	var u models.Upload
	var status string
	err := r.db.QueryRowContext(ctx, query, submissionID, fileKey).Scan(
		&u.SubmissionID, &u.FileKey, &u.OriginalName, &u.TotalChunks, &status,
		&u.FinalFilename, &u.Size, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select upload: %w", err)
	}
	u.Status = models.UploadStatus(status)

	return &u, nil
}

// Upsert inserts the row or overwrites every mutable column of an existing
// one. created_at is kept from the first insert.
func (r *SQLRepository) Upsert(ctx context.Context, u *models.Upload) error {
	query := `
		INSERT INTO uploads (submission_id, file_key, original_name, total_chunks, status, final_filename, size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (submission_id, file_key)
		DO UPDATE SET
			original_name = EXCLUDED.original_name,
			total_chunks = EXCLUDED.total_chunks,
			status = EXCLUDED.status,
			final_filename = EXCLUDED.final_filename,
			size = EXCLUDED.size,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		u.SubmissionID, u.FileKey, u.OriginalName, u.TotalChunks, string(u.Status),
		u.FinalFilename, u.Size, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Track runs the read and the write of fn in one transaction. When the
// repository is already bound to a transaction it joins it.
func (r *SQLRepository) Track(ctx context.Context, submissionID, fileKey string, fn TrackFunc) error {
	db, ok := r.db.(*sql.DB)
	if !ok {
		return r.track(ctx, submissionID, fileKey, fn)
	}
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		inTx := &SQLRepository{db: tx, rowLocks: r.rowLocks}
		return inTx.track(ctx, submissionID, fileKey, fn)
	})
}

func (r *SQLRepository) track(ctx context.Context, submissionID, fileKey string, fn TrackFunc) error {
	query := selectUpload
	if r.rowLocks {
		query += " FOR UPDATE"
	}

	cur, err := r.get(ctx, query, submissionID, fileKey)
	if errors.Is(err, common.ErrorNotFound) {
		cur = nil
	} else if err != nil {
		return err
	}

	next, err := fn(cur)
	if err != nil || next == nil {
		return err
	}
	return r.Upsert(ctx, next)
}

// MarkCompleted flips the row to completed. Exactly one row must be affected.
func (r *SQLRepository) MarkCompleted(ctx context.Context, submissionID, fileKey, finalFilename string, size int64, at time.Time) error {
	query := `UPDATE uploads SET status=$1, final_filename=$2, size=$3, updated_at=$4
		WHERE submission_id=$5 AND file_key=$6`

	res, err := r.db.ExecContext(ctx, query,
		string(models.UploadStatusCompleted), finalFilename, size, at, submissionID, fileKey)
	if err != nil {
		return fmt.Errorf("failed to mark completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// Delete removes the row.
func (r *SQLRepository) Delete(ctx context.Context, submissionID, fileKey string) error {
	query := `DELETE FROM uploads WHERE submission_id=$1 AND file_key=$2`

	res, err := r.db.ExecContext(ctx, query, submissionID, fileKey)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// ListStale returns receiving uploads last touched before the given time,
// oldest first.
func (r *SQLRepository) ListStale(ctx context.Context, before time.Time) ([]*models.Upload, error) {
	query := `SELECT submission_id, file_key, original_name, total_chunks, status, final_filename, size, created_at, updated_at
		FROM uploads WHERE status=$1 AND updated_at<$2 ORDER BY updated_at`

	rows, err := r.db.QueryContext(ctx, query, string(models.UploadStatusReceiving), before)
	if err != nil {
		return nil, fmt.Errorf("failed to select uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.Upload
	for rows.Next() {
		var u models.Upload
		var status string
		if err := rows.Scan(&u.SubmissionID, &u.FileKey, &u.OriginalName, &u.TotalChunks, &status,
			&u.FinalFilename, &u.Size, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Status = models.UploadStatus(status)
		result = append(result, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
