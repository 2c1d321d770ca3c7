// Package loader opens the configured record source for a dataset.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/esvd-explorer/server/internal/config"
	"github.com/esvd-explorer/server/internal/data/flatfile"
	"github.com/esvd-explorer/server/internal/data/sqlitedb"
	"github.com/esvd-explorer/server/internal/data/table"
)

// IsSQLite reports whether path names a SQLite database.
func IsSQLite(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sqlite", ".sqlite3", ".db":
		return true
	}
	return false
}

// Load reads and cleans the records of one dataset.
func Load(ctx context.Context, ds config.DatasetConfig, logger *zap.Logger) (*table.Table, error) {
	if ds.Path == "" {
		return nil, fmt.Errorf("dataset has no path")
	}

	var (
		tbl *table.Table
		err error
	)
	if IsSQLite(ds.Path) {
		var store *sqlitedb.Store
		store, err = sqlitedb.NewStore(ds.Path, sqlitedb.Options{Table: ds.Table, Columns: ds.Columns, ReadOnly: true})
		if err != nil {
			return nil, err
		}
		defer store.Close()
		tbl, err = store.Load(ctx)
	} else {
		tbl, err = flatfile.Load(ds.Path, flatfile.Options{Columns: ds.Columns})
	}
	if err != nil {
		return nil, err
	}

	logger.Info("records loaded",
		zap.String("source", tbl.Source()),
		zap.Int("rows", tbl.Len()),
		zap.Int("dropped", tbl.Dropped()),
		zap.Int("studies", tbl.Studies()),
		zap.Int("services", tbl.Services()),
	)
	if tbl.Dropped() > 0 {
		logger.Warn("incomplete rows dropped at load", zap.Int("dropped", tbl.Dropped()))
	}
	return tbl, nil
}
