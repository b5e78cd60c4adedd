// Package uploader is the client side of the chunkstore HTTP surface.
//
// A Client splits a local file into fixed-size chunks and posts them in
// order to /upload/{sub_id}, the same form fields a browser uploader sends:
// name, chunk, chunks and the file part file. A file that fits in one chunk
// is sent without chunk fields. Delete and Download wrap /delete and
// /getfile.
//
// Non-2xx responses come back as *netx.StatusError, which unwraps to the
// sentinels in internal/common (ErrorNotFound, ErrorUnauthorized,
// ErrChunkCountMismatch).
package uploader
