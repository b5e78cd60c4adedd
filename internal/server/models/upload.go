package models

import "time"

// UploadStatus tracks where an upload is in its lifecycle.
type UploadStatus string

const (
	UploadStatusReceiving UploadStatus = "receiving"
	UploadStatusCompleted UploadStatus = "completed"
)

// Upload is the persisted state of one file being uploaded into a
// submission. It is keyed by (SubmissionID, FileKey), where FileKey is
// "<safe_name>_<md5>" as used for chunk names.
type Upload struct {
	SubmissionID string
	FileKey      string
	OriginalName string

	// TotalChunks is the count declared by the first chunk of the current
	// upload cycle; single-chunk uploads store 1.
	TotalChunks int

	Status UploadStatus

	// FinalFilename and Size are set once the file is assembled.
	FinalFilename string
	Size          int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Completed reports whether the file has been assembled.
func (u *Upload) Completed() bool {
	return u.Status == UploadStatusCompleted
}
