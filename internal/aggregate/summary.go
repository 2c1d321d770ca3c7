// Package aggregate reduces a filtered record subset into per-service
// statistics plus one TOTAL row.
package aggregate

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/esvd-explorer/server/internal/data/table"
	"github.com/esvd-explorer/server/internal/stats"
)

// TotalLabel is the service label of the TOTAL row.
const TotalLabel = "TOTAL"

// ErrEmptySubset is returned when there is nothing to summarize.
var ErrEmptySubset = errors.New("aggregate: empty subset")

// SummaryRow holds the statistics of one service, or of the whole subset
// when IsTotal is set. For the TOTAL row Mean is the sum of the service means.
type SummaryRow struct {
	Service       string  `json:"service"`
	IsTotal       bool    `json:"is_total,omitempty"`
	UniqueStudies int     `json:"unique_studies"`
	Observations  int     `json:"observations"`
	Mean          float64 `json:"mean"`
	Median        float64 `json:"median"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
}

// MarshalJSON writes a statistic that is not a finite number (a TOTAL mean
// whose sum overflowed) as null, so one such cell does not fail the table.
func (r SummaryRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Service       string   `json:"service"`
		IsTotal       bool     `json:"is_total,omitempty"`
		UniqueStudies int      `json:"unique_studies"`
		Observations  int      `json:"observations"`
		Mean          *float64 `json:"mean"`
		Median        *float64 `json:"median"`
		Min           *float64 `json:"min"`
		Max           *float64 `json:"max"`
	}{
		Service:       r.Service,
		IsTotal:       r.IsTotal,
		UniqueStudies: r.UniqueStudies,
		Observations:  r.Observations,
		Mean:          finite(r.Mean),
		Median:        finite(r.Median),
		Min:           finite(r.Min),
		Max:           finite(r.Max),
	})
}

func finite(v float64) *float64 {
	if !stats.Finite(v) {
		return nil
	}
	return &v
}

// Rounded returns a copy with every statistic rounded to two decimals.
func (r SummaryRow) Rounded() SummaryRow {
	r.Mean = stats.Round2(r.Mean)
	r.Median = stats.Round2(r.Median)
	r.Min = stats.Round2(r.Min)
	r.Max = stats.Round2(r.Max)
	return r
}

// Summary is the result of Summarize.
type Summary struct {
	// Rows are the service rows, sorted by mean descending.
	Rows  []SummaryRow `json:"rows"`
	Total SummaryRow   `json:"total"`
}

// Table returns the service rows followed by the TOTAL row.
func (s Summary) Table() []SummaryRow {
	out := make([]SummaryRow, 0, len(s.Rows)+1)
	out = append(out, s.Rows...)
	return append(out, s.Total)
}

// Rounded returns Table with display rounding applied.
func (s Summary) Rounded() []SummaryRow {
	rows := s.Table()
	for i := range rows {
		rows[i] = rows[i].Rounded()
	}
	return rows
}

type group struct {
	service string
	values  []float64
	studies map[string]struct{}
}

// Summarize groups subset by service and computes the summary table.
func Summarize(subset []table.Record) (Summary, error) {
	if len(subset) == 0 {
		return Summary{}, ErrEmptySubset
	}

	var groups []*group
	index := make(map[string]*group)
	all := make([]float64, 0, len(subset))
	studies := make(map[string]struct{})

	for _, r := range subset {
		g, ok := index[r.Service]
		if !ok {
			g = &group{service: r.Service, studies: make(map[string]struct{})}
			index[r.Service] = g
			groups = append(groups, g)
		}
		g.values = append(g.values, r.Value)
		g.studies[r.StudyID] = struct{}{}

		all = append(all, r.Value)
		studies[r.StudyID] = struct{}{}
	}

	rows := make([]SummaryRow, 0, len(groups))
	sumOfMeans := 0.0
	for _, g := range groups {
		row := SummaryRow{
			Service:       g.service,
			UniqueStudies: len(g.studies),
			Observations:  len(g.values),
			Mean:          stats.Mean(g.values),
			Median:        stats.Median(g.values),
			Min:           stats.Min(g.values),
			Max:           stats.Max(g.values),
		}
		sumOfMeans += row.Mean
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Mean > rows[j].Mean })

	total := SummaryRow{
		Service:       TotalLabel,
		IsTotal:       true,
		UniqueStudies: len(studies),
		Observations:  len(all),
		Mean:          sumOfMeans,
		Median:        stats.Median(all),
		Min:           stats.Min(all),
		Max:           stats.Max(all),
	}
	return Summary{Rows: rows, Total: total}, nil
}
