// Package app provides the unified application lifecycle for padsync.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/padsync/padsync/internal/backup"
	"github.com/padsync/padsync/internal/broadcast"
	"github.com/padsync/padsync/internal/config"
	"github.com/padsync/padsync/internal/geometry"
	"github.com/padsync/padsync/internal/history"
	"github.com/padsync/padsync/internal/pads"
	"github.com/padsync/padsync/internal/padstore"
	"github.com/padsync/padsync/internal/registry"
	"github.com/padsync/padsync/internal/route"
	"github.com/padsync/padsync/internal/server"
	"github.com/padsync/padsync/internal/socket"
	"github.com/padsync/padsync/internal/storage"
)

// App wires the stores, the pad service, the socket endpoint and the backup
// daemon, and manages their lifecycle.
type App struct {
	cfg *config.Config

	store    *padstore.SQLiteStore
	geom     *geometry.Store
	svc      *pads.Service
	daemon   *backup.Daemon
	shutdown *server.ShutdownManager

	httpServer *server.GracefulHTTPServer

	mu      sync.Mutex
	running bool
}

// New creates an App with the given configuration. An optional route
// engine overrides the built-in straight-line fallback.
func New(cfg *config.Config, router route.Service) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	app := &App{
		cfg:      cfg,
		shutdown: server.NewShutdownManager(0),
	}

	store, err := padstore.Open(cfg.PadDBPath())
	if err != nil {
		return nil, fmt.Errorf("open pad store: %w", err)
	}
	app.store = store

	geom, err := geometry.Open(cfg.GeometryDBPath(), cfg.Geometry.BatchSize)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open geometry store: %w", err)
	}
	app.geom = geom

	hist := history.NewLog(store.ReadDB(), cfg.History.Retain)
	bus := broadcast.NewBroadcaster(cfg.Server.EventBuffer)
	reg := registry.NewRegistry(0)
	app.svc = pads.NewService(store, geom, hist, bus, reg, router)

	if cfg.Backup.Enabled {
		objects, err := newObjectStorage(context.Background(), cfg)
		if err != nil {
			geom.Close()
			store.Close()
			return nil, fmt.Errorf("init backup storage: %w", err)
		}
		app.daemon = backup.NewDaemon(store, geom, objects, cfg.Backup.Interval)
		app.svc.SetDirtyHook(app.daemon.MarkDirty)
	}

	return app, nil
}

// newObjectStorage builds the configured backup target.
func newObjectStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.Storage.Type {
	case "s3":
		return storage.NewS3Storage(ctx, cfg.Storage.S3.Bucket, storage.S3Config{
			Region:   cfg.Storage.S3.Region,
			Endpoint: cfg.Storage.S3.Endpoint,
		})
	default:
		return storage.NewLocalStorage(cfg.Storage.Path)
	}
}

// Run starts everything and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	// Closers run LIFO: the HTTP server (registered by ListenAndServe)
	// goes down first, then the daemon, then the stores.
	a.shutdown.RegisterCloser(a.store)
	a.shutdown.RegisterCloser(a.geom)

	if a.daemon != nil {
		a.daemon.Start()
		a.shutdown.RegisterCloser(server.CloserFunc(func() error {
			a.daemon.Stop()
			return nil
		}))
	}

	mux := http.NewServeMux()
	mux.Handle("/socket", socket.NewServer(a.svc, a.cfg.Server))

	a.httpServer = server.NewGracefulHTTPServer(&http.Server{
		Addr:    a.cfg.Server.Addr,
		Handler: mux,
	}, a.shutdown)

	go func() {
		if err := a.shutdown.ListenForSignals(ctx); err != nil {
			log.Printf("app: shutdown: %v", err)
		}
	}()

	log.Printf("app: listening on %s", a.cfg.Server.Addr)
	return a.httpServer.ListenAndServe()
}

// Stop triggers a graceful shutdown.
func (a *App) Stop(ctx context.Context) error {
	return a.shutdown.Shutdown(ctx, "stop requested")
}

// Service exposes the pad service, used by tests and embedders.
func (a *App) Service() *pads.Service {
	return a.svc
}
