// Package service provides the explorer pipeline for one dataset: cascade
// resolution, summary table, study map and exports, with caching.
package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/esvd-explorer/server/internal/aggregate"
	"github.com/esvd-explorer/server/internal/cache"
	"github.com/esvd-explorer/server/internal/data/table"
	"github.com/esvd-explorer/server/internal/export"
	"github.com/esvd-explorer/server/internal/filter"
	"github.com/esvd-explorer/server/internal/metrics"
	"github.com/esvd-explorer/server/internal/points"
	"github.com/esvd-explorer/server/internal/render"
)

// PipelineError is a fatal cascade failure. It carries the stages resolved
// before the failure so callers can still show the selectors.
type PipelineError struct {
	Err        error
	Resolution filter.Resolution
}

func (e *PipelineError) Error() string { return e.Err.Error() }
func (e *PipelineError) Unwrap() error { return e.Err }

// ExplorerConfig contains explorer configuration.
type ExplorerConfig struct {
	DatasetID string
	Table     *table.Table
	Cache     *cache.Manager // optional
	Renderer  *render.MapRenderer
	Metrics   *metrics.Metrics // optional
	Logger    *zap.Logger
}

// Explorer runs the pipeline over one immutable table. It holds no
// selection state and is safe for concurrent use.
type Explorer struct {
	datasetID string
	table     *table.Table
	cache     *cache.Manager
	renderer  *render.MapRenderer
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewExplorer creates a new explorer.
func NewExplorer(cfg ExplorerConfig) *Explorer {
	datasetID := cfg.DatasetID
	if datasetID == "" {
		datasetID = "default"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = render.NewMapRenderer(render.Config{})
	}
	tbl := cfg.Table
	if tbl == nil {
		tbl = table.New("", nil, 0)
	}
	return &Explorer{
		datasetID: datasetID,
		table:     tbl,
		cache:     cfg.Cache,
		renderer:  renderer,
		metrics:   cfg.Metrics,
		logger:    logger.With(zap.String("dataset", datasetID)),
	}
}

// DatasetID returns the dataset this explorer serves.
func (s *Explorer) DatasetID() string { return s.datasetID }

// Info describes the loaded table.
type Info struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Rows     int    `json:"rows"`
	Dropped  int    `json:"dropped"`
	Studies  int    `json:"studies"`
	Services int    `json:"services"`
}

// Info returns table statistics.
func (s *Explorer) Info() Info {
	return Info{
		ID:       s.datasetID,
		Source:   s.table.Source(),
		Rows:     s.table.Len(),
		Dropped:  s.table.Dropped(),
		Studies:  s.table.Studies(),
		Services: s.table.Services(),
	}
}

// Snapshot is a resolved selection state: the three cascade stages plus the
// map-only service stage.
type Snapshot struct {
	filter.Resolution
	Service *filter.Stage `json:"service,omitempty"`
}

// State returns the repaired selections to hold for the next cycle.
func (s Snapshot) State() (filter.Chain, filter.Selection) {
	var service filter.Selection
	if s.Service != nil {
		service = s.Service.Selected
	}
	return s.Chain, service
}

// Resolve runs the cascade and repairs the service selection against the
// resulting subset. Fatal conditions are returned as *PipelineError.
func (s *Explorer) Resolve(chain filter.Chain, service filter.Selection) (Snapshot, error) {
	start := time.Now()
	res, err := filter.Resolve(s.table.Records(), chain)
	s.metrics.ObserveResolution(s.datasetID, err)
	s.metrics.ObserveDuration(s.datasetID, "resolve", start)
	if err != nil {
		s.logger.Warn("cascade stopped",
			zap.Error(err),
			zap.Stringer("biome", res.Chain.Biome),
			zap.Stringer("ecozone", res.Chain.Ecozone),
			zap.Stringer("ecosystem", res.Chain.Ecosystem),
		)
		return Snapshot{Resolution: res}, &PipelineError{Err: err, Resolution: res}
	}
	stage := filter.ResolveService(res.Records, service)
	return Snapshot{Resolution: res, Service: &stage}, nil
}

// SummaryView is the table tab payload.
type SummaryView struct {
	Chain  filter.Chain `json:"chain"`
	Labels [3]string    `json:"labels"`
	// UniqueStudies is the header metric: distinct studies in the subset.
	UniqueStudies int                    `json:"unique_studies"`
	Rows          []aggregate.SummaryRow `json:"rows"`
	Filename      string                 `json:"filename"`

	summary aggregate.Summary
}

// Summary resolves chain and summarizes the subset. Rows are rounded for display.
func (s *Explorer) Summary(chain filter.Chain) (SummaryView, error) {
	snap, err := s.Resolve(chain, filter.None)
	if err != nil {
		return SummaryView{}, err
	}
	start := time.Now()
	sum, err := aggregate.Summarize(snap.Records)
	if err != nil {
		return SummaryView{}, fmt.Errorf("summarize: %w", err)
	}
	s.metrics.ObserveDuration(s.datasetID, "summary", start)
	return SummaryView{
		Chain:         snap.Chain,
		Labels:        snap.Chain.Labels(),
		UniqueStudies: sum.Total.UniqueStudies,
		Rows:          sum.Rounded(),
		Filename:      export.Filename(snap.Chain, "csv"),
		summary:       sum,
	}, nil
}

// MapResult is the map tab payload. Warning is set instead of an error when
// no point has coordinates.
type MapResult struct {
	Chain   filter.Chain   `json:"chain"`
	Service filter.Stage   `json:"service"`
	Count   int            `json:"count"`
	Warning string         `json:"warning,omitempty"`
	View    points.MapView `json:"map"`
}

// Map resolves chain and service and builds the study points.
func (s *Explorer) Map(chain filter.Chain, service filter.Selection) (MapResult, error) {
	snap, err := s.Resolve(chain, service)
	if err != nil {
		return MapResult{}, err
	}
	start := time.Now()
	view, err := points.Build(snap.Records, snap.Service.Selected)
	s.metrics.ObserveMapBuild(s.datasetID, err)
	s.metrics.ObserveDuration(s.datasetID, "map", start)

	out := MapResult{Chain: snap.Chain, Service: *snap.Service}
	switch {
	case errors.Is(err, points.ErrNoMapPoints):
		s.logger.Debug("no map points", zap.Stringer("service", snap.Service.Selected))
		out.Warning = err.Error()
		out.View = points.MapView{Points: []points.StudyPoint{}}
		return out, nil
	case err != nil:
		return MapResult{}, fmt.Errorf("build points: %w", err)
	}
	out.View = view
	out.Count = len(view.Points)
	return out, nil
}

func (s *Explorer) cachedQuery(key string, build func() (any, error)) ([]byte, error) {
	if s.cache != nil {
		data, ok := s.cache.GetQuery(key)
		s.metrics.ObserveCache(metrics.CacheQuery, ok)
		if ok {
			return data, nil
		}
	}
	v, err := build()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	if s.cache != nil {
		s.cache.SetQuery(key, data)
	}
	return data, nil
}

func (s *Explorer) cachedFile(key string, build func() ([]byte, error)) ([]byte, error) {
	if s.cache != nil {
		data, ok := s.cache.GetFile(key)
		s.metrics.ObserveCache(metrics.CacheFile, ok)
		if ok {
			return data, nil
		}
	}
	data, err := build()
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetFile(key, data); err != nil {
			s.logger.Debug("file not cached", zap.String("key", key), zap.Error(err))
		}
	}
	return data, nil
}

// SummaryJSON returns the encoded Summary, cached per chain.
func (s *Explorer) SummaryJSON(chain filter.Chain) ([]byte, error) {
	return s.cachedQuery(cache.QueryKey(s.datasetID, "summary", chain, filter.None), func() (any, error) {
		return s.Summary(chain)
	})
}

// MapJSON returns the encoded Map result, cached per chain and service.
func (s *Explorer) MapJSON(chain filter.Chain, service filter.Selection) ([]byte, error) {
	return s.cachedQuery(cache.QueryKey(s.datasetID, "map", chain, service), func() (any, error) {
		return s.Map(chain, service)
	})
}

// ExportCSV returns the unrounded summary as CSV with its download filename.
func (s *Explorer) ExportCSV(chain filter.Chain) (string, []byte, error) {
	return s.exportFile(chain, "csv", func(buf *bytes.Buffer, view SummaryView) error {
		return export.WriteCSV(buf, view.summary)
	})
}

// ExportXLSX returns the unrounded summary as an XLSX workbook.
func (s *Explorer) ExportXLSX(chain filter.Chain) (string, []byte, error) {
	return s.exportFile(chain, "xlsx", func(buf *bytes.Buffer, view SummaryView) error {
		return export.WriteXLSX(buf, view.Chain, view.summary)
	})
}

func (s *Explorer) exportFile(chain filter.Chain, ext string, write func(*bytes.Buffer, SummaryView) error) (string, []byte, error) {
	// Resolve first so the filename and key use the repaired chain.
	snap, err := s.Resolve(chain, filter.None)
	if err != nil {
		return "", nil, err
	}
	data, err := s.cachedFile(cache.FileKey(s.datasetID, ext, snap.Chain, filter.None), func() ([]byte, error) {
		view, err := s.Summary(snap.Chain)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := write(&buf, view); err != nil {
			return nil, fmt.Errorf("export %s: %w", ext, err)
		}
		return buf.Bytes(), nil
	})
	if err != nil {
		return "", nil, err
	}
	return export.Filename(snap.Chain, ext), data, nil
}

// MapPNG renders a static preview of the study map. When there are no points
// the image is an empty map and warning is set.
func (s *Explorer) MapPNG(chain filter.Chain, service filter.Selection, colormapName string) (data []byte, warning string, err error) {
	result, err := s.Map(chain, service)
	if err != nil {
		return nil, "", err
	}
	cmap := s.renderer.Colormap(colormapName).Name()
	key := cache.FileKey(s.datasetID, "png:"+cmap, result.Chain, result.Service.Selected)
	data, err = s.cachedFile(key, func() ([]byte, error) {
		start := time.Now()
		defer s.metrics.ObserveDuration(s.datasetID, "render", start)
		return s.renderer.Render(result.View, cmap)
	})
	return data, result.Warning, err
}
