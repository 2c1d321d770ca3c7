// Package config handles configuration loading for the ESVD explorer server.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/esvd-explorer/server/internal/data/table"
	"github.com/esvd-explorer/server/internal/logging"
)

// Config represents the server configuration.
type Config struct {
	Server  ServerConfig      `yaml:"server"`
	Data    DataConfig        `yaml:"data"`
	Cache   CacheConfig       `yaml:"cache"`
	Session SessionConfig     `yaml:"session"`
	Render  RenderConfig      `yaml:"render"`
	Log     logging.LogConfig `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Title       string   `yaml:"title"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatasetConfig describes one record source.
type DatasetConfig struct {
	// Path to a .csv (optionally .gz/.zst) file or a .sqlite/.db database.
	Path string `yaml:"path"`
	// Table is the SQLite table name; ignored for flat files.
	Table   string        `yaml:"table"`
	Columns table.Columns `yaml:"columns"`
}

// DataConfig contains the configured datasets in declaration order.
type DataConfig struct {
	DefaultDataset string
	Datasets       map[string]DatasetConfig
	order          []string
}

// DatasetIDs returns dataset IDs in config order.
func (d DataConfig) DatasetIDs() []string {
	return d.order
}

// UnmarshalYAML accepts either a single dataset (legacy `path:` form) or a
// mapping of named datasets. The first named dataset becomes the default.
func (d *DataConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("data: expected mapping, got %v", node.Tag)
	}

	legacy := false
	for i := 0; i < len(node.Content); i += 2 {
		switch node.Content[i].Value {
		case "path", "table", "columns":
			legacy = true
		}
	}

	d.Datasets = make(map[string]DatasetConfig)
	d.order = nil

	if legacy {
		var ds DatasetConfig
		if err := node.Decode(&ds); err != nil {
			return err
		}
		d.Datasets["default"] = ds
		d.order = []string{"default"}
		d.DefaultDataset = "default"
		return nil
	}

	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var ds DatasetConfig
		if err := node.Content[i+1].Decode(&ds); err != nil {
			return fmt.Errorf("data.%s: %w", key, err)
		}
		if _, dup := d.Datasets[key]; !dup {
			d.order = append(d.order, key)
		}
		d.Datasets[key] = ds
	}
	if len(d.order) > 0 {
		d.DefaultDataset = d.order[0]
	}
	return nil
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	ExportSizeMB     int `yaml:"export_size_mb"`
	ExportTTLMinutes int `yaml:"export_ttl_minutes"`
	QueryCacheSize   int `yaml:"query_cache_size"`
}

// SessionConfig bounds the per-user selection state kept in memory.
type SessionConfig struct {
	MaxSessions    int `yaml:"max_sessions"`
	IdleTTLMinutes int `yaml:"idle_ttl_minutes"`
}

// RenderConfig contains map preview settings.
type RenderConfig struct {
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	DefaultColormap string  `yaml:"default_colormap"`
	RadiusMin       float64 `yaml:"radius_min"`
	RadiusMax       float64 `yaml:"radius_max"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Title:       "ESVD | Ecosystem services",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Data: DataConfig{
			DefaultDataset: "default",
			Datasets: map[string]DatasetConfig{
				"default": {
					Path:    "./data/ESVD_limpia_final_sin_multibioma.csv",
					Columns: table.DefaultColumns(),
				},
			},
			order: []string{"default"},
		},
		Cache: CacheConfig{
			ExportSizeMB:     64,
			ExportTTLMinutes: 10,
			QueryCacheSize:   1000,
		},
		Session: SessionConfig{
			MaxSessions:    10000,
			IdleTTLMinutes: 60,
		},
		Render: RenderConfig{
			Width:           1024,
			Height:          512,
			DefaultColormap: "viridis",
			RadiusMin:       3,
			RadiusMax:       60,
		},
		Log: logging.LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if len(cfg.Data.Datasets) == 0 {
		cfg.Data = defaults.Data
	}
	for id, ds := range cfg.Data.Datasets {
		ds.Columns = ds.Columns.WithDefaults()
		cfg.Data.Datasets[id] = ds
	}
	if cfg.Cache.ExportSizeMB == 0 {
		cfg.Cache.ExportSizeMB = defaults.Cache.ExportSizeMB
	}
	if cfg.Cache.ExportTTLMinutes == 0 {
		cfg.Cache.ExportTTLMinutes = defaults.Cache.ExportTTLMinutes
	}
	if cfg.Cache.QueryCacheSize == 0 {
		cfg.Cache.QueryCacheSize = defaults.Cache.QueryCacheSize
	}
	if cfg.Session.MaxSessions == 0 {
		cfg.Session.MaxSessions = defaults.Session.MaxSessions
	}
	if cfg.Session.IdleTTLMinutes == 0 {
		cfg.Session.IdleTTLMinutes = defaults.Session.IdleTTLMinutes
	}
	if cfg.Render.Width == 0 {
		cfg.Render.Width = defaults.Render.Width
	}
	if cfg.Render.Height == 0 {
		cfg.Render.Height = defaults.Render.Height
	}
	if cfg.Render.DefaultColormap == "" {
		cfg.Render.DefaultColormap = defaults.Render.DefaultColormap
	}
	if cfg.Render.RadiusMin == 0 {
		cfg.Render.RadiusMin = defaults.Render.RadiusMin
	}
	if cfg.Render.RadiusMax == 0 {
		cfg.Render.RadiusMax = defaults.Render.RadiusMax
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
}
