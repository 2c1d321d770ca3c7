// Package points collapses a record subset into one map point per study.
package points

import (
	"bytes"
	"errors"
	"html/template"
	"sort"
	"strconv"

	"github.com/esvd-explorer/server/internal/data/table"
	"github.com/esvd-explorer/server/internal/filter"
	"github.com/esvd-explorer/server/internal/stats"
)

// ErrNoMapPoints means no row of the map subset has coordinates.
// It only suppresses the map; table output is unaffected.
var ErrNoMapPoints = errors.New("no points with coordinates for the current filters")

// Scale percentiles used to clip point values.
const (
	LowPercentile  = 5
	HighPercentile = 95
)

// ServiceValue is one (service, value) pair of a study.
type ServiceValue struct {
	Service   string  `json:"service"`
	Value     float64 `json:"value"`
	Formatted string  `json:"formatted"`
}

// StudyPoint is one study on the map.
type StudyPoint struct {
	StudyID         string         `json:"study_id"`
	Latitude        float64        `json:"latitude"`
	Longitude       float64        `json:"longitude"`
	Value           float64        `json:"value"`
	ValueClip       float64        `json:"value_clip"`
	Country         string         `json:"country"`
	Ecosystem       string         `json:"ecosystem"`
	ValuationMethod string         `json:"valuation_method"`
	Services        []ServiceValue `json:"services"`
	Tooltip         string         `json:"tooltip_html"`
}

// Center is the initial view position.
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MapView is the full map payload.
type MapView struct {
	Points []StudyPoint `json:"points"`
	Center Center       `json:"center"`
	P5     float64      `json:"p5"`
	P95    float64      `json:"p95"`
}

var tooltipTmpl = template.Must(template.New("tooltip").Parse(
	`<div style="max-width: 380px;">` +
		`<div><b>Country:</b> {{.Country}}</div>` +
		`<div><b>Ecosystem:</b> {{.Ecosystem}}</div>` +
		`<div><b>Method:</b> {{.ValuationMethod}}</div>` +
		`<div style="margin-top:6px;"><b>Services and values (USD/ha/year):</b></div>` +
		`<ul style="margin:0; padding-left:18px;">` +
		`{{range .Services}}<li><b>{{.Service}}</b>: {{.Formatted}}</li>{{end}}` +
		`</ul></div>`))

// Tooltip renders the HTML tooltip of p. Field values are escaped.
func Tooltip(p StudyPoint) (string, error) {
	var buf bytes.Buffer
	if err := tooltipTmpl.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatValue formats a value with two decimals.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

type study struct {
	first  table.Record
	values []float64
	pairs  []ServiceValue
}

// Build filters subset by service (when a category is selected), drops rows
// without coordinates and returns one point per study ordered by study id.
func Build(subset []table.Record, service filter.Selection) (MapView, error) {
	rows := subset
	if _, ok := service.Category(); ok {
		rows = filter.FilterByService(subset, service)
	}

	var order []string
	studies := make(map[string]*study)
	for _, r := range rows {
		if !r.HasCoordinates() {
			continue
		}
		s, ok := studies[r.StudyID]
		if !ok {
			s = &study{first: r}
			studies[r.StudyID] = s
			order = append(order, r.StudyID)
		}
		s.values = append(s.values, r.Value)
		s.pairs = append(s.pairs, ServiceValue{Service: r.Service, Value: r.Value, Formatted: FormatValue(r.Value)})
	}
	if len(order) == 0 {
		return MapView{}, ErrNoMapPoints
	}
	sortStudyIDs(order)

	view := MapView{Points: make([]StudyPoint, 0, len(order))}
	values := make([]float64, 0, len(order))
	var latSum, lonSum float64
	for _, id := range order {
		s := studies[id]
		p := StudyPoint{
			StudyID:         id,
			Latitude:        s.first.Latitude.Float64,
			Longitude:       s.first.Longitude.Float64,
			Value:           stats.Median(s.values),
			Country:         s.first.Country.String,
			Ecosystem:       s.first.Ecosystem,
			ValuationMethod: s.first.ValuationMethod.String,
			Services:        s.pairs,
		}
		tip, err := Tooltip(p)
		if err != nil {
			return MapView{}, err
		}
		p.Tooltip = tip
		view.Points = append(view.Points, p)
		values = append(values, p.Value)
		latSum += p.Latitude
		lonSum += p.Longitude
	}

	ps := stats.Percentiles(values, LowPercentile, HighPercentile)
	view.P5, view.P95 = ps[0], ps[1]
	for i := range view.Points {
		view.Points[i].ValueClip = stats.Clip(view.Points[i].Value, view.P5, view.P95)
	}
	n := float64(len(view.Points))
	view.Center = Center{Lat: latSum / n, Lon: lonSum / n}
	return view, nil
}

// sortStudyIDs orders ids numerically; ids are canonical numbers after cleaning.
func sortStudyIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, aok := table.ParseNumber(ids[i])
		b, bok := table.ParseNumber(ids[j])
		if aok && bok {
			return a < b
		}
		return ids[i] < ids[j]
	})
}
