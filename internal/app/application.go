// Package app composes the registry components from configuration and
// manages the lifecycle of the long-running API process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/R3E-Network/property_registry/internal/catalog"
	"github.com/R3E-Network/property_registry/internal/chain"
	"github.com/R3E-Network/property_registry/internal/config"
	"github.com/R3E-Network/property_registry/internal/domain/property"
	"github.com/R3E-Network/property_registry/internal/httpapi"
	"github.com/R3E-Network/property_registry/internal/registry"
	"github.com/R3E-Network/property_registry/internal/source"
	"github.com/R3E-Network/property_registry/internal/storage/postgres"
	"github.com/R3E-Network/property_registry/internal/syncer"
	"github.com/R3E-Network/property_registry/pkg/logger"
)

// Server timeouts.
const (
	ReadTimeout     = 30 * time.Second
	WriteTimeout    = 30 * time.Second
	IdleTimeout     = 120 * time.Second
	ShutdownTimeout = 10 * time.Second

	imageCheckTimeout = 10 * time.Second
)

// Options tune what NewApplication wires.
type Options struct {
	// Catalog overrides the fallback dataset; nil loads CATALOG_FILE or the
	// embedded catalog.
	Catalog []property.Property
	// RateLimit is requests per second per API client; zero disables limiting.
	RateLimit float64
	Burst     int
	// AllowedOrigins enables CORS for the listed origins.
	AllowedOrigins []string
}

// Application wires the chain client, reconciliation source and optional
// mirror for one process.
type Application struct {
	cfg *config.Config
	log *logger.Logger

	chain  *chain.Client
	redis  *source.RedisCache
	source *source.Source
	store  *postgres.Store
	syncer *syncer.Syncer

	handler http.Handler
	server  *http.Server
	sched   *syncer.Scheduler
}

// NewApplication builds the components named by cfg. Without a registry
// address no chain client is created; without DATABASE_URL no mirror is
// opened. Opening the mirror applies pending migrations.
func NewApplication(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	a := &Application{cfg: cfg, log: log}

	fallback := opts.Catalog
	if fallback == nil {
		items, err := catalog.Load(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		fallback = items
	}

	var caller registry.Caller
	if cfg.RegistryAddress != "" {
		chainCfg, err := cfg.ChainConfig()
		if err != nil {
			return nil, err
		}
		// No request is made until the first read, so an unreachable node
		// surfaces as an error source rather than a startup failure.
		client, err := chain.NewClient(ctx, chainCfg)
		if err != nil {
			return nil, err
		}
		a.chain = client
		caller = client
		log.WithField("network", chainCfg.Network.Redacted()).Info("registry client configured")
	}

	var cache source.Cache
	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		rc, err := source.DialRedis(ctx, url)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rc
		cache = rc
	}

	src, err := source.ForAddress(cfg.RegistryAddress, caller, cache, cfg.SourceConfig(fallback), log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.source = src

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = store
		if err := postgres.Migrate(store.DB()); err != nil {
			a.Close()
			return nil, err
		}

		var blocks syncer.BlockReader
		if a.chain != nil {
			blocks = a.chain
		}
		a.syncer = syncer.New(src, blocks, store, syncer.NewImageChecker(imageCheckTimeout), log)
	}

	a.handler = httpapi.NewHandler(httpapi.Options{
		Source:         src,
		RateLimit:      opts.RateLimit,
		Burst:          opts.Burst,
		AllowedOrigins: opts.AllowedOrigins,
		Logger:         log,
	})
	return a, nil
}

// Source returns the reconciliation source.
func (a *Application) Source() *source.Source { return a.source }

// Handler returns the API router.
func (a *Application) Handler() http.Handler { return a.handler }

// Chain returns the chain client, or nil when no registry is configured.
func (a *Application) Chain() *chain.Client { return a.chain }

// Store returns the mirror store, or nil when DATABASE_URL is unset.
func (a *Application) Store() *postgres.Store { return a.store }

// SyncOnce runs a single mirror pass.
func (a *Application) SyncOnce(ctx context.Context) (*syncer.Report, error) {
	if a.syncer == nil {
		return nil, a.cfg.RequireDatabase()
	}
	return a.syncer.Run(ctx)
}

// Run serves the API on HTTP_ADDR and, with a mirror configured, runs the
// scheduled sync. It blocks until ctx is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if a.syncer != nil && a.cfg.SyncSchedule != "" {
		sched, err := syncer.NewScheduler(a.cfg.SyncSchedule, a.syncer, 0, a.log)
		if err != nil {
			return err
		}
		a.sched = sched
		sched.Start()
		a.log.WithField("schedule", a.cfg.SyncSchedule).Info("catalog mirror scheduled")
	}

	a.server = &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      a.handler,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.cfg.HTTPAddr).Info("HTTP server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

// Shutdown stops the server and the scheduler, then releases connections.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	var err error
	if a.server != nil {
		err = a.server.Shutdown(shutdownCtx)
	}
	if a.sched != nil {
		a.sched.Stop(shutdownCtx)
	}
	a.Close()
	return err
}

// Close releases the chain, cache and database connections.
func (a *Application) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
		a.store = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
		a.redis = nil
	}
	if a.chain != nil {
		a.chain.Close()
		a.chain = nil
	}
}
