package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"github.com/dmitrijs2005/chunkstore/internal/server/upload"
	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

var errMalformedRequest = errors.New("malformed request")

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

// handleUpload accepts one chunk as multipart fields name, chunk, chunks
// and the file part file. Without chunk or chunks the request is a whole
// file.
func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub := mux.Vars(r)["sub_id"]

	if s.maxChunkSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxChunkSize)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("chunk exceeds %s", humanize.IBytes(uint64(tooLarge.Limit))))
			return
		}
		s.writeError(w, r, fmt.Errorf("%w: %v", errMalformedRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	name, ok := formField(r, "name")
	if !ok || name == "" {
		s.writeError(w, r, fmt.Errorf("%w: missing name", errMalformedRequest))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: missing file part", errMalformedRequest))
		return
	}
	defer file.Close()

	req := upload.ChunkRequest{SubmissionID: sub, Name: name, Body: file}

	chunk, hasChunk := formField(r, "chunk")
	chunks, hasChunks := formField(r, "chunks")
	if hasChunk && hasChunks {
		index, err := strconv.Atoi(chunk)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: chunk %q", common.ErrInvalidChunk, chunk))
			return
		}
		total, err := strconv.Atoi(chunks)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: chunks %q", common.ErrInvalidChunk, chunks))
			return
		}
		req.Index, req.Total = index, &total
	}

	final, err := s.service.Receive(ctx, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, final)
}

func (s *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	sub := mux.Vars(r)["sub_id"]

	filename := r.FormValue("filename")
	if filename == "" {
		s.writeError(w, r, fmt.Errorf("%w: missing filename", errMalformedRequest))
		return
	}

	res, err := s.service.Delete(r.Context(), sub, filename)
	if errors.Is(err, common.ErrorNotFound) {
		writeText(w, http.StatusNotFound, "File "+filename+" not found")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, res.String())
}

func (s *HTTPServer) handleGetFile(w http.ResponseWriter, r *http.Request) {
	sub := mux.Vars(r)["sub_id"]

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		s.writeError(w, r, fmt.Errorf("%w: missing filename", errMalformedRequest))
		return
	}

	f, err := s.service.Open(r.Context(), sub, filename)
	if err != nil {
		writeText(w, http.StatusNotFound, "File "+filename+" not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	http.ServeContent(w, r, f.Name, f.ModTime, f)
}

// formField reads a multipart value, reporting whether it was sent at all.
func formField(r *http.Request, key string) (string, bool) {
	if r.MultipartForm == nil {
		return "", false
	}
	vs, ok := r.MultipartForm.Value[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidIdentifier),
		errors.Is(err, common.ErrInvalidChunk),
		errors.Is(err, errMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrChunkCountMismatch):
		return http.StatusConflict
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeText(w, code, "internal error")
		return
	}
	s.logger.Warn(r.Context(), "request rejected", "path", r.URL.Path, "status", code, "error", err)
	writeText(w, code, err.Error())
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, body)
}
