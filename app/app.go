package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/deemkeen/fedinbox/activitypub"
	"github.com/deemkeen/fedinbox/db"
	"github.com/deemkeen/fedinbox/markers"
	"github.com/deemkeen/fedinbox/util"
	"github.com/deemkeen/fedinbox/web"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout    = 30 * time.Second
	markerPurgeEvery   = time.Hour
	memoryMarkerLimit  = 100000
	defaultWorkerCount = 4
)

// App represents the main application with all its servers and dependencies
type App struct {
	config     *util.AppConfig
	db         *db.DB
	markers    markers.Store
	deps       *activitypub.Deps
	processor  *activitypub.Processor
	delivery   *activitypub.DeliveryWorker
	httpServer *http.Server
	log        *slog.Logger
}

// New creates a new App instance with the given configuration
func New(conf *util.AppConfig) (*App, error) {
	if conf.Conf.LocalDomain == "" {
		return nil, errors.New("localDomain must be configured")
	}
	return &App{
		config: conf,
		log:    slog.Default().With("component", "app"),
	}, nil
}

// Open sets up the database, the marker store and the federation services.
// It is enough for one-shot commands.
func (a *App) Open(ctx context.Context) error {
	a.log.Info("opening database", "path", a.config.Conf.DatabasePath)
	database, err := db.Open(a.config.Conf.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.db = database

	store, err := newMarkerStore(a.config, database)
	if err != nil {
		database.Close()
		return err
	}
	a.markers = store

	client := activitypub.NewDefaultHTTPClient(a.config.FetchTimeout())
	a.deps = activitypub.NewDeps(a.config, database, client, store)
	a.processor = activitypub.NewProcessor(a.deps)

	if _, err := activitypub.EnsureInstanceActor(ctx, a.deps); err != nil {
		a.Close()
		return fmt.Errorf("failed to create instance actor: %w", err)
	}
	return nil
}

// Initialize opens everything and prepares the HTTP server and the
// delivery worker
func (a *App) Initialize(ctx context.Context) error {
	if err := a.Open(ctx); err != nil {
		return err
	}

	workers := a.config.Conf.DeliveryWorkers
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	a.delivery = activitypub.NewDeliveryWorker(a.deps, workers)

	router := web.NewRouter(a.config, a.deps, a.processor, a.db)
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.config.Conf.Host, a.config.Conf.HttpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Deps exposes the federation services to one-shot commands
func (a *App) Deps() *activitypub.Deps {
	return a.deps
}

// Start runs the HTTP server and the background workers until ctx is
// cancelled, then shuts down gracefully and releases the stores
func (a *App) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("starting HTTP server", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.delivery.Run(gctx)
		return nil
	})

	if purger, ok := a.markers.(*db.MarkerStore); ok {
		g.Go(func() error {
			purgeMarkers(gctx, purger, a.log)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown signal received")
		return a.Shutdown()
	})

	err := g.Wait()
	return errors.Join(err, a.Close())
}

// Shutdown gracefully stops the HTTP server with a 30 second timeout
func (a *App) Shutdown() error {
	a.log.Info("initiating graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.log.Error("HTTP server shutdown error", "err", err)
		return err
	}
	a.log.Info("HTTP server stopped gracefully")
	return nil
}

// Close releases the marker store and the database
func (a *App) Close() error {
	var errs []error
	if closer, ok := a.markers.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	return errors.Join(errs...)
}

// newMarkerStore picks the marker backend named in the config
func newMarkerStore(conf *util.AppConfig, database *db.DB) (markers.Store, error) {
	switch conf.Conf.MarkerBackend {
	case "", "sqlite":
		return database.Markers(), nil
	case "memory":
		return markers.NewMemoryStore(memoryMarkerLimit), nil
	case "redis":
		store, err := markers.NewRedisStore(conf.Conf.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect marker store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown marker backend %q", conf.Conf.MarkerBackend)
	}
}

// purgeMarkers drops expired sqlite markers once an hour
func purgeMarkers(ctx context.Context, store *db.MarkerStore, log *slog.Logger) {
	ticker := time.NewTicker(markerPurgeEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Purge(ctx)
			if err != nil {
				log.Warn("failed to purge markers", "err", err)
				continue
			}
			if n > 0 {
				log.Debug("purged expired markers", "count", n)
			}
		}
	}
}
