package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_LegacyFormat(t *testing.T) {
	content := `
server:
  port: 9000
data:
  path: "/data/esvd.csv"
cache:
  export_size_mb: 16
`
	cfg := loadFromString(t, content)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "default", cfg.Data.DefaultDataset)

	ds, ok := cfg.Data.Datasets["default"]
	require.True(t, ok, "expected 'default' dataset")
	assert.Equal(t, "/data/esvd.csv", ds.Path)
	assert.Equal(t, "esvd2_0_biome", ds.Columns.Biome)
	assert.Equal(t, 16, cfg.Cache.ExportSizeMB)
}

func TestLoad_MultiDatasetFormat(t *testing.T) {
	content := `
server:
  port: 8080
data:
  latam:
    path: "/data/latam.csv.gz"
    columns:
      service: "service_label"
  global:
    path: "/data/esvd.sqlite"
    table: "records"
`
	cfg := loadFromString(t, content)

	require.Len(t, cfg.Data.Datasets, 2)
	// First dataset in YAML order should be default
	assert.Equal(t, "latam", cfg.Data.DefaultDataset)
	assert.Equal(t, []string{"latam", "global"}, cfg.Data.DatasetIDs())

	latam := cfg.Data.Datasets["latam"]
	assert.Equal(t, "service_label", latam.Columns.Service)
	assert.Equal(t, "esvd2_0_ecozones", latam.Columns.Ecozone)

	global := cfg.Data.Datasets["global"]
	assert.Equal(t, "records", global.Table)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
data:
  test:
    path: "/test/esvd.csv"
log:
  level: debug
`
	cfg := loadFromString(t, content)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 64, cfg.Cache.ExportSizeMB)
	assert.Equal(t, 1000, cfg.Cache.QueryCacheSize)
	assert.Equal(t, 10000, cfg.Session.MaxSessions)
	assert.Equal(t, 1024, cfg.Render.Width)
	assert.Equal(t, 60.0, cfg.Render.RadiusMax)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_NoDataSection(t *testing.T) {
	content := `
server:
  port: 8080
`
	cfg := loadFromString(t, content)

	assert.Equal(t, "default", cfg.Data.DefaultDataset)
	assert.Len(t, cfg.Data.Datasets, 1)
	assert.Equal(t, []string{"default"}, cfg.Data.DatasetIDs())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data: [1, 2"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	return cfg
}
