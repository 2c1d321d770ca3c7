package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/esvd-explorer/server/internal/data/flatfile"
	"github.com/esvd-explorer/server/internal/data/sqlitedb"
)

type importOutput struct {
	Command    string `json:"command"`
	DurationMS int64  `json:"duration_ms"`
	Source     string `json:"source"`
	Database   string `json:"database"`
	Table      string `json:"table"`
	Imported   int    `json:"imported"`
	Dropped    int    `json:"dropped"`
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		in        string
		dbPath    string
		tableName string
		datasetID string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Clean a CSV file and load its records into a SQLite database",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if datasetID == "" {
				datasetID = a.cfg.Data.DefaultDataset
			}
			// Column names come from the dataset config so the database can be
			// served with the same mapping.
			columns := a.cfg.Data.Datasets[datasetID].Columns.WithDefaults()

			start := time.Now()
			tbl, err := flatfile.Load(in, flatfile.Options{Columns: columns})
			if err != nil {
				return err
			}

			store, err := sqlitedb.NewStore(dbPath, sqlitedb.Options{Table: tableName, Columns: columns})
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Import(cmd.Context(), tbl.Records()); err != nil {
				return fmt.Errorf("failed to import into %s: %w", dbPath, err)
			}
			a.logger.Info("records imported",
				zap.String("source", in),
				zap.String("database", dbPath),
				zap.Int("rows", tbl.Len()),
				zap.Int("dropped", tbl.Dropped()),
			)

			name := tableName
			if name == "" {
				name = sqlitedb.DefaultTable
			}
			return writeJSON(cmd.OutOrStdout(), importOutput{
				Command:    "import",
				DurationMS: time.Since(start).Milliseconds(),
				Source:     in,
				Database:   dbPath,
				Table:      name,
				Imported:   tbl.Len(),
				Dropped:    tbl.Dropped(),
			})
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "CSV file to import, optionally .gz or .zst (required)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (required)")
	cmd.Flags().StringVar(&tableName, "table", "", "Table name (default "+sqlitedb.DefaultTable+")")
	cmd.Flags().StringVar(&datasetID, "dataset", "", "Dataset whose column mapping is used (default: first configured)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
