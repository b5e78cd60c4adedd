// Package httpapi exposes the upload service over HTTP: chunk upload,
// delete and file retrieval per submission, plus health and metrics.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/logging"
	"github.com/dmitrijs2005/chunkstore/internal/server/metrics"
	"github.com/dmitrijs2005/chunkstore/internal/server/upload"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// UploadService is the part of upload.Service used by the handlers.
type UploadService interface {
	Receive(ctx context.Context, req upload.ChunkRequest) (string, error)
	Delete(ctx context.Context, submissionID, original string) (upload.DeleteResult, error)
	Open(ctx context.Context, submissionID, filename string) (*upload.File, error)
}

type Options struct {
	Address string
	Logger  logging.Logger
	Service UploadService

	// Metrics and Gatherer are optional; without a Gatherer /metrics is
	// not routed.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// MaxChunkSize caps one upload request body.
	MaxChunkSize int64

	// SecretKey enables submission token checks when non-empty.
	SecretKey []byte
}

type HTTPServer struct {
	address      string
	logger       logging.Logger
	service      UploadService
	metrics      *metrics.Metrics
	gatherer     prometheus.Gatherer
	maxChunkSize int64
	secret       []byte
}

func NewHTTPServer(o Options) *HTTPServer {
	logger := o.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &HTTPServer{
		address:      o.Address,
		logger:       logger.With("module", "http_server"),
		service:      o.Service,
		metrics:      o.Metrics,
		gatherer:     o.Gatherer,
		maxChunkSize: o.MaxChunkSize,
		secret:       o.SecretKey,
	}
}

// Handler builds the router.
func (s *HTTPServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestLogger)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet).Name("healthz")
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet).Name("metrics")
	}

	api := r.NewRoute().Subrouter()
	if len(s.secret) > 0 {
		api.Use(s.requireSubmissionToken)
	}
	api.HandleFunc("/upload/{sub_id}", s.handleUpload).Methods(http.MethodPost).Name("upload")
	api.HandleFunc("/delete/{sub_id}", s.handleDelete).Methods(http.MethodPost).Name("delete")
	api.HandleFunc("/getfile/{sub_id}", s.handleGetFile).Methods(http.MethodGet).Name("getfile")

	return r
}

func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve handles requests on lis until ctx is cancelled, then drains
// in-flight requests.
func (s *HTTPServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
