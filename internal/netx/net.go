// Package netx holds small HTTP helpers shared by the CLI client.
package netx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/chunkstore/internal/common"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// Field is one plain multipart value. Fields are written in order.
type Field struct {
	Name  string
	Value string
}

// FilePart is the file part of a multipart request.
type FilePart struct {
	Field    string
	Filename string
	Body     io.Reader
}

// StatusError is returned for non-2xx responses. It unwraps to the
// matching sentinel in common, so callers can use errors.Is.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed: %s; body: %s", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case http.StatusConflict:
		return common.ErrChunkCountMismatch
	default:
		return nil
	}
}

// PostMultipart streams fields followed by file as multipart/form-data to
// url. The body is produced while it is sent, so file is never buffered
// whole. header is copied onto the request.
func PostMultipart(ctx context.Context, client *http.Client, url string, header http.Header, fields []Field, file *FilePart) (*http.Response, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, fields, file))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		pr.Close()
		return nil, err
	}
	return resp, nil
}

func writeMultipart(mw *multipart.Writer, fields []Field, file *FilePart) error {
	for _, f := range fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return err
		}
	}
	if file != nil {
		part, err := mw.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, file.Body); err != nil {
			return err
		}
	}
	return mw.Close()
}

// CheckResponse returns a *StatusError for any non-2xx response. The body
// of a failed response is consumed and closed.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Code:   resp.StatusCode,
		Status: resp.Status,
		Body:   strings.TrimSpace(string(b)),
	}
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
