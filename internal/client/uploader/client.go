package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"github.com/dmitrijs2005/chunkstore/internal/netx"
)

// ErrNotAssembled is returned when the last chunk was accepted but the
// server did not report a final filename.
var ErrNotAssembled = errors.New("server did not assemble the upload")

type Options struct {
	ServerURL string
	Token     string
	ChunkSize int64
	Timeout   time.Duration

	// HTTPClient overrides the default client, Timeout is then ignored.
	HTTPClient *http.Client
}

type Client struct {
	base      *url.URL
	token     string
	chunkSize int64
	http      *http.Client
}

// Progress is called after every accepted chunk with the bytes sent so far.
type Progress func(sent, total int64)

func New(o Options) (*Client, error) {
	base, err := url.Parse(o.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url %q", o.ServerURL)
	}
	if o.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", o.ChunkSize)
	}

	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}

	return &Client{base: base, token: o.Token, chunkSize: o.ChunkSize, http: hc}, nil
}

func (c *Client) endpoint(route, submissionID string) string {
	return c.base.JoinPath(route, submissionID).String()
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set(common.AuthorizationHeaderName, "Bearer "+c.token)
	}
	return h
}

// Upload sends the file at path to the submission and returns the final
// filename assigned by the server.
func (c *Client) Upload(ctx context.Context, submissionID, path string, progress Progress) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", path)
	}

	name := filepath.Base(path)
	size := fi.Size()
	total := chunkCount(size, c.chunkSize)

	var final string
	for i := int64(0); i < total; i++ {
		off := i * c.chunkSize
		n := min(c.chunkSize, size-off)

		var fields []netx.Field
		fields = append(fields, netx.Field{Name: "name", Value: name})
		if total > 1 {
			fields = append(fields,
				netx.Field{Name: "chunk", Value: strconv.FormatInt(i, 10)},
				netx.Field{Name: "chunks", Value: strconv.FormatInt(total, 10)},
			)
		}

		body, err := c.post(ctx, c.endpoint("upload", submissionID), fields,
			&netx.FilePart{Field: "file", Filename: "blob", Body: io.NewSectionReader(f, off, n)})
		if err != nil {
			return "", fmt.Errorf("upload chunk %d/%d of %s: %w", i+1, total, name, err)
		}
		final = body

		if progress != nil {
			progress(off+n, size)
		}
	}

	if final == "" {
		return "", fmt.Errorf("%s: %w", name, ErrNotAssembled)
	}
	return final, nil
}

// chunkCount is the number of requests needed for size bytes. An empty
// file still takes one request.
func chunkCount(size, chunkSize int64) int64 {
	if size <= 0 {
		return 1
	}
	return (size + chunkSize - 1) / chunkSize
}

// Delete removes every trace of the original file name from the
// submission and returns the server's report.
func (c *Client) Delete(ctx context.Context, submissionID, name string) (string, error) {
	return c.post(ctx, c.endpoint("delete", submissionID), []netx.Field{{Name: "filename", Value: name}}, nil)
}

// Download writes the assembled file to w and returns the bytes copied.
func (c *Client) Download(ctx context.Context, submissionID, filename string, w io.Writer) (int64, error) {
	u := c.base.JoinPath("getfile", submissionID)
	u.RawQuery = url.Values{"filename": {filename}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header = c.header()

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	if err := netx.CheckResponse(resp); err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return io.Copy(w, resp.Body)
}

func (c *Client) post(ctx context.Context, endpoint string, fields []netx.Field, file *netx.FilePart) (string, error) {
	resp, err := netx.PostMultipart(ctx, c.http, endpoint, c.header(), fields, file)
	if err != nil {
		return "", err
	}
	if err := netx.CheckResponse(resp); err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
