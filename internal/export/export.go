// Package export serializes the summary table for download.
// Exports keep full precision; rounding is a display concern.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/esvd-explorer/server/internal/aggregate"
	"github.com/esvd-explorer/server/internal/filter"
)

// Header is the column header of exported tables.
var Header = []string{"service", "unique_studies", "observations", "mean", "median", "min", "max"}

const (
	summarySheet = "summary"
	filtersSheet = "filters"
)

// Filename returns table_<biome>_<ecozone>_<ecosystem>.<ext> with spaces
// replaced by underscores.
func Filename(chain filter.Chain, ext string) string {
	labels := chain.Labels()
	name := fmt.Sprintf("table_%s_%s_%s.%s", labels[0], labels[1], labels[2], strings.TrimPrefix(ext, "."))
	return strings.ReplaceAll(name, " ", "_")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func record(r aggregate.SummaryRow) []string {
	return []string{
		r.Service,
		strconv.Itoa(r.UniqueStudies),
		strconv.Itoa(r.Observations),
		formatFloat(r.Mean),
		formatFloat(r.Median),
		formatFloat(r.Min),
		formatFloat(r.Max),
	}
}

// WriteCSV writes the service rows and the TOTAL row as UTF-8 CSV.
func WriteCSV(w io.Writer, s aggregate.Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range s.Table() {
		if err := cw.Write(record(row)); err != nil {
			return fmt.Errorf("write row %q: %w", row.Service, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a workbook with the summary on the first sheet and the
// selection labels on a second one.
func WriteXLSX(w io.Writer, chain filter.Chain, s aggregate.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	for i, h := range Header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(summarySheet, cell, h); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 40); err != nil {
		return err
	}
	if err := f.SetColWidth(summarySheet, "B", "G", 16); err != nil {
		return err
	}

	for i, r := range s.Table() {
		row := []any{r.Service, r.UniqueStudies, r.Observations, r.Mean, r.Median, r.Min, r.Max}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write row %q: %w", r.Service, err)
		}
	}

	if _, err := f.NewSheet(filtersSheet); err != nil {
		return err
	}
	labels := chain.Labels()
	filters := [][]any{
		{"level", "selection"},
		{string(filter.LevelBiome), labels[0]},
		{string(filter.LevelEcozone), labels[1]},
		{string(filter.LevelEcosystem), labels[2]},
	}
	for i, row := range filters {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(filtersSheet, cell, &row); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}
