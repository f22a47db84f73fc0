// Package app wires config into the store, feed gateway and services shared
// by the server and the operator CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kjannette/stationprice/internal/config"
	"github.com/kjannette/stationprice/internal/db"
	"github.com/kjannette/stationprice/internal/external"
	"github.com/kjannette/stationprice/internal/guard"
	"github.com/kjannette/stationprice/internal/logging"
	"github.com/kjannette/stationprice/internal/notifications"
	"github.com/kjannette/stationprice/internal/repository"
	"github.com/kjannette/stationprice/internal/service"
	"github.com/kjannette/stationprice/internal/sightings"
)

type Store interface {
	service.AnnotationStore
	Ping(ctx context.Context) error
}

type App struct {
	Config     *config.Config
	Store      Store
	Sightings  *sightings.Index
	Gateway    *external.OverpassGateway
	Reconciler *service.Reconciler
	Writer     *service.PriceWriter

	pool *pgxpool.Pool
	log  zerolog.Logger
}

// New opens the configured store and builds the services on top of it.
// Close must be called to release the database pool.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}

	switch cfg.StoreBackend {
	case config.StoreMemory:
		a.Store = repository.NewMemoryAnnotationRepo()
		log.Warn().Msg("using in-memory annotation store")
	default:
		dbLog := logging.Component(log, "db")
		dbLog.Info().Str("host", cfg.DBHost).Int("port", cfg.DBPort).Str("name", cfg.DBName).Msg("connecting")
		pool, err := db.Connect(ctx, cfg.DSN(), cfg.Pool())
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		if err := db.TestConnection(ctx, pool, dbLog); err != nil {
			pool.Close()
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		a.pool = pool
		a.Store = repository.NewAnnotationRepo(pool)
	}

	a.Sightings = sightings.New(cfg.MaxSightings)

	a.Gateway = external.NewOverpassGateway(external.OverpassOptions{
		Endpoint:      cfg.OverpassURL,
		Filter:        cfg.POIFilter,
		Timeout:       cfg.OverpassTimeout,
		RatePerSecond: cfg.OverpassRatePerSecond,
		Burst:         cfg.OverpassBurst,
		MaxParallel:   cfg.OverpassMaxParallel,
		Recorder:      a.Sightings,
	}, logging.Component(log, "overpass"))

	a.Reconciler = service.NewReconciler(a.Gateway, a.Store, service.ReconcilerOptions{
		BatchSize:   cfg.BulkBatchSize,
		Concurrency: cfg.BulkConcurrency,
	}, logging.Component(log, "reconciler"))

	a.Writer = service.NewPriceWriter(a.Store, service.WriterOptions{
		SnapRadiusMeters: cfg.SnapRadiusMeters,
		Snapper:          a.Sightings,
		Guard: guard.New(guard.Limits{
			MaxPrice:         cfg.MaxPrice,
			MaxChangePercent: cfg.MaxChangePercent,
		}),
		Notifier: notifications.NewSender(cfg.WebhookURL, cfg.NotifyName, logging.Component(log, "notify")),
	}, logging.Component(log, "writer"))

	return a, nil
}

// Close waits for queued notifications and closes the database pool.
func (a *App) Close() {
	a.Writer.Wait()
	if a.pool != nil {
		a.pool.Close()
		a.log.Info().Msg("database pool closed")
	}
}
