package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/esvd-explorer/server/internal/filter"
	"github.com/esvd-explorer/server/internal/service"
)

// selectionFlags are the filter flags shared by the offline commands.
// An omitted flag leaves the level to its default, an empty value selects
// ALL and anything else selects that category.
type selectionFlags struct {
	dataset   string
	biome     string
	ecozone   string
	ecosystem string
	service   string
}

func (f *selectionFlags) register(cmd *cobra.Command, withService bool) {
	cmd.Flags().StringVar(&f.dataset, "dataset", "", "Dataset ID (default: first configured)")
	cmd.Flags().StringVar(&f.biome, "biome", "", "Biome")
	cmd.Flags().StringVar(&f.ecozone, "ecozone", "", "Ecozone (empty for ALL)")
	cmd.Flags().StringVar(&f.ecosystem, "ecosystem", "", "Ecosystem (empty for ALL)")
	if withService {
		cmd.Flags().StringVar(&f.service, "service", "", "Ecosystem service (empty for ALL)")
	}
}

func selectionFlag(cmd *cobra.Command, name, value string) filter.Selection {
	if !cmd.Flags().Changed(name) {
		return filter.None
	}
	if value == "" {
		return filter.All()
	}
	return filter.Value(value)
}

func (f *selectionFlags) chain(cmd *cobra.Command) filter.Chain {
	return filter.Chain{
		Biome:     selectionFlag(cmd, "biome", f.biome),
		Ecozone:   selectionFlag(cmd, "ecozone", f.ecozone),
		Ecosystem: selectionFlag(cmd, "ecosystem", f.ecosystem),
	}
}

func (f *selectionFlags) serviceSelection(cmd *cobra.Command) filter.Selection {
	if cmd.Flags().Lookup("service") == nil {
		return filter.None
	}
	return selectionFlag(cmd, "service", f.service)
}

type pipelineErrorOutput struct {
	Error      string            `json:"error"`
	Fatal      bool              `json:"fatal"`
	Resolution filter.Resolution `json:"resolution"`
}

// withExplorer loads the selected dataset and runs fn against it. A fatal
// pipeline error is printed as JSON with the stages resolved so far.
func withExplorer(cmd *cobra.Command, opts *rootOptions, f *selectionFlags, fn func(*service.Explorer) error) error {
	a, err := newApp(opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	datasetID := f.dataset
	if datasetID == "" {
		datasetID = a.cfg.Data.DefaultDataset
	}
	svc, err := a.explorer(cmd.Context(), datasetID)
	if err != nil {
		return err
	}

	err = fn(svc)
	var pe *service.PipelineError
	if errors.As(err, &pe) {
		if werr := writeJSON(cmd.OutOrStdout(), pipelineErrorOutput{Error: pe.Error(), Fatal: true, Resolution: pe.Resolution}); werr != nil {
			return werr
		}
	}
	return err
}

func newOptionsCmd(opts *rootOptions) *cobra.Command {
	var flags selectionFlags
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Resolve the filter cascade and print the options of every level",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExplorer(cmd, opts, &flags, func(svc *service.Explorer) error {
				snap, err := svc.Resolve(flags.chain(cmd), flags.serviceSelection(cmd))
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), snap)
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	var flags selectionFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the per-service summary table of the filtered records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExplorer(cmd, opts, &flags, func(svc *service.Explorer) error {
				view, err := svc.Summary(flags.chain(cmd))
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), view)
			})
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newPointsCmd(opts *rootOptions) *cobra.Command {
	var flags selectionFlags
	cmd := &cobra.Command{
		Use:   "points",
		Short: "Print the study points of the filtered records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExplorer(cmd, opts, &flags, func(svc *service.Explorer) error {
				result, err := svc.Map(flags.chain(cmd), flags.serviceSelection(cmd))
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		flags  selectionFlags
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the summary table as CSV or XLSX",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExplorer(cmd, opts, &flags, func(svc *service.Explorer) error {
				var (
					name string
					data []byte
					err  error
				)
				switch format {
				case "csv":
					name, data, err = svc.ExportCSV(flags.chain(cmd))
				case "xlsx":
					name, data, err = svc.ExportXLSX(flags.chain(cmd))
				default:
					return fmt.Errorf("invalid --format %q (want csv or xlsx)", format)
				}
				if err != nil {
					return err
				}

				if out == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				path := out
				if path == "" {
					path = name
				} else if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					path = filepath.Join(path, name)
				}
				if err := os.WriteFile(path, data, 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				return writeJSON(cmd.OutOrStdout(), exportOutput{Path: path, Format: format, Bytes: len(data)})
			})
		},
	}
	flags.register(cmd, false)
	cmd.Flags().StringVar(&format, "format", "csv", "Output format: csv or xlsx")
	cmd.Flags().StringVar(&out, "out", "", "Output file or directory; - for stdout (default: generated filename)")
	return cmd
}

type exportOutput struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Bytes  int    `json:"bytes"`
}
