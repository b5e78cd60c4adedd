// Package server initializes and runs the chunkstore server. It wires the
// upload-state store, the archive mirror and the upload service, then runs
// the HTTP and gRPC endpoints and the stale upload sweeper until a signal
// arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/chunkstore/internal/dbx"
	"github.com/dmitrijs2005/chunkstore/internal/logging"
	"github.com/dmitrijs2005/chunkstore/internal/server/archive"
	"github.com/dmitrijs2005/chunkstore/internal/server/config"
	"github.com/dmitrijs2005/chunkstore/internal/server/httpapi"
	"github.com/dmitrijs2005/chunkstore/internal/server/metrics"
	"github.com/dmitrijs2005/chunkstore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/chunkstore/internal/server/repositories/uploads"
	"github.com/dmitrijs2005/chunkstore/internal/server/upload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/chunkstore/internal/server/grpc"
)

var (
	openDB = dbx.Open

	newArchiver = func(ctx context.Context, c archive.S3Config) (upload.Archiver, error) {
		return archive.NewS3Archiver(ctx, c)
	}
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	service  *upload.Service
}

func NewApp(c *config.Config) (*App, error) {
	return newApp(c, logging.New(os.Stdout, c.LogFormat, c.LogLevel))
}

func newApp(c *config.Config, logger logging.Logger) (*App, error) {
	ctx := context.Background()

	repo, db, err := initUploadState(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var arch upload.Archiver
	if c.ArchiveEnabled() {
		arch, err = newArchiver(ctx, archive.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			closeDB(db)
			return nil, fmt.Errorf("archive init error: %w", err)
		}
	}

	svc, err := upload.NewService(upload.Options{
		Root:      c.StorageRoot,
		Logger:    logger,
		Uploads:   repo,
		MaxChunks: c.MaxChunks,
		Archiver:  arch,
		Metrics:   m,
	})
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	return &App{config: c, logger: logger, db: db, registry: registry, metrics: m, service: svc}, nil
}

// initUploadState returns the in-memory store for an empty DSN, otherwise
// opens the database and migrates it.
func initUploadState(ctx context.Context, c *config.Config) (uploads.Repository, *sql.DB, error) {
	if c.DatabaseDSN == "" {
		return uploads.NewMemoryRepository(), nil, nil
	}

	db, dialect, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}

	rm := repomanager.NewSQLRepositoryManager(dialect)
	if err := rm.RunMigrations(ctx, db); err != nil {
		closeDB(db)
		return nil, nil, err
	}

	return rm.Uploads(db), db, nil
}

func closeDB(db *sql.DB) {
	if db != nil {
		_ = db.Close()
	}
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(httpapi.Options{
		Address:      app.config.EndpointAddrHTTP,
		Logger:       app.logger,
		Service:      app.service,
		Metrics:      app.metrics,
		Gatherer:     app.registry,
		MaxChunkSize: app.config.MaxChunkSize,
		SecretKey:    []byte(app.config.SecretKey),
	})

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startSweeper(ctx context.Context) {
	upload.NewSweeper(app.service, app.config.StaleUploadTTL, app.config.SweepInterval, app.logger).Run(ctx)
}

// Run blocks until ctx is cancelled, a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"storage_root", app.service.Root(),
		"auth", app.config.AuthEnabled(),
		"archive", app.config.ArchiveEnabled(),
		"persistent_state", app.db != nil,
	)

	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startSweeper(ctx)
	}()

	wg.Wait()

	closeDB(app.db)
	app.logger.Info(context.Background(), "App stopped")
}
