package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/esvd-explorer/server/internal/api"
	"github.com/esvd-explorer/server/internal/cache"
	"github.com/esvd-explorer/server/internal/config"
	"github.com/esvd-explorer/server/internal/data/loader"
	"github.com/esvd-explorer/server/internal/logging"
	"github.com/esvd-explorer/server/internal/metrics"
	"github.com/esvd-explorer/server/internal/render"
	"github.com/esvd-explorer/server/internal/service"
)

// app holds the components shared by every dataset.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	cache    *cache.Manager
	renderer *render.MapRenderer
	metrics  *metrics.Metrics
}

// newApp loads configuration and builds the shared components. Offline
// commands write their results to stdout, so their logs default to stderr.
func newApp(opts *rootOptions, offline bool) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if offline && len(cfg.Log.OutputPaths) == 0 {
		cfg.Log.OutputPaths = []string{"stderr"}
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cacheManager, err := cache.NewManager(cache.Config{
		FileCacheSizeMB: cfg.Cache.ExportSizeMB,
		FileTTL:         time.Duration(cfg.Cache.ExportTTLMinutes) * time.Minute,
		QueryCacheSize:  cfg.Cache.QueryCacheSize,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	renderer := render.NewMapRenderer(render.Config{
		Width:           cfg.Render.Width,
		Height:          cfg.Render.Height,
		DefaultColormap: cfg.Render.DefaultColormap,
		RadiusMin:       cfg.Render.RadiusMin,
		RadiusMax:       cfg.Render.RadiusMax,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		cache:    cacheManager,
		renderer: renderer,
		metrics:  metrics.New(),
	}, nil
}

func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("cache close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// explorer loads one dataset and wraps it in an explorer.
func (a *app) explorer(ctx context.Context, datasetID string) (*service.Explorer, error) {
	ds, ok := a.cfg.Data.Datasets[datasetID]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q (configured: %v)", datasetID, a.cfg.Data.DatasetIDs())
	}
	logger := a.logger.With(zap.String("dataset", datasetID))

	tbl, err := loader.Load(ctx, ds, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %q: %w", datasetID, err)
	}

	return service.NewExplorer(service.ExplorerConfig{
		DatasetID: datasetID,
		Table:     tbl,
		Cache:     a.cache,
		Renderer:  a.renderer,
		Metrics:   a.metrics,
		Logger:    a.logger,
	}), nil
}

// registry loads every configured dataset.
func (a *app) registry(ctx context.Context) (*api.DatasetRegistry, error) {
	datasetIDs := a.cfg.Data.DatasetIDs()
	registry := api.NewDatasetRegistry(a.cfg.Data.DefaultDataset, datasetIDs, a.cfg.Server.Title)

	a.logger.Info("initializing datasets",
		zap.Int("count", len(datasetIDs)),
		zap.String("default", a.cfg.Data.DefaultDataset),
	)
	for _, datasetID := range datasetIDs {
		svc, err := a.explorer(ctx, datasetID)
		if err != nil {
			return nil, err
		}
		registry.Register(datasetID, svc)
	}
	return registry, nil
}
