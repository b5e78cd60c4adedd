// Package models defines server-side data models for uploads.
package models

// FileMetadata is the record written next to every assembled file as
// metadata_<final filename>. It is write-once for downstream consumers.
type FileMetadata struct {
	// Name is the original filename as supplied by the client.
	Name string
	// Path is the absolute path of the assembled file.
	Path string
	// Size is the byte length of the assembled file.
	Size int64
}
