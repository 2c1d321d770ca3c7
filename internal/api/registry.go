package api

import (
	"github.com/esvd-explorer/server/internal/service"
)

// DatasetRegistry holds explorers for all configured datasets.
type DatasetRegistry struct {
	services       map[string]*service.Explorer
	defaultDataset string
	datasetOrder   []string
	title          string
}

// NewDatasetRegistry creates a new dataset registry.
func NewDatasetRegistry(defaultDataset string, order []string, title string) *DatasetRegistry {
	return &DatasetRegistry{
		services:       make(map[string]*service.Explorer),
		defaultDataset: defaultDataset,
		datasetOrder:   order,
		title:          title,
	}
}

// Register adds an explorer for a dataset.
func (r *DatasetRegistry) Register(datasetID string, svc *service.Explorer) {
	r.services[datasetID] = svc
}

// Get returns the explorer for a dataset, or nil if not found.
func (r *DatasetRegistry) Get(datasetID string) *service.Explorer {
	return r.services[datasetID]
}

// Default returns the default dataset's explorer.
func (r *DatasetRegistry) Default() *service.Explorer {
	return r.services[r.defaultDataset]
}

// DefaultDatasetID returns the default dataset ID.
func (r *DatasetRegistry) DefaultDatasetID() string {
	return r.defaultDataset
}

// DatasetIDs returns all dataset IDs in config order.
func (r *DatasetRegistry) DatasetIDs() []string {
	return r.datasetOrder
}

// Title returns the configured site title.
func (r *DatasetRegistry) Title() string {
	if r.title != "" {
		return r.title
	}
	return "ESVD explorer"
}

// Datasets returns table info for all registered datasets in config order.
func (r *DatasetRegistry) Datasets() []service.Info {
	infos := make([]service.Info, 0, len(r.datasetOrder))
	for _, id := range r.datasetOrder {
		svc := r.services[id]
		if svc == nil {
			continue
		}
		infos = append(infos, svc.Info())
	}
	return infos
}
