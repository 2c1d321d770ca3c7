// Package table holds the cleaned, immutable table of valuation records.
package table

import (
	"database/sql"
	"math"
	"strconv"
	"strings"
)

// Record is one cleaned row of the valuation table.
type Record struct {
	Biome           string
	Ecozone         sql.NullString
	Ecosystem       string
	Service         string
	Value           float64 // value per hectare per year
	StudyID         string
	Latitude        sql.NullFloat64
	Longitude       sql.NullFloat64
	Country         sql.NullString
	ValuationMethod sql.NullString
}

// HasCoordinates reports whether both latitude and longitude are present.
func (r Record) HasCoordinates() bool {
	return r.Latitude.Valid && r.Longitude.Valid
}

// Columns maps record fields to source column names.
type Columns struct {
	Biome           string `yaml:"biome"`
	Ecozone         string `yaml:"ecozone"`
	Ecosystem       string `yaml:"ecosystem"`
	Service         string `yaml:"service"`
	Value           string `yaml:"value"`
	StudyID         string `yaml:"study_id"`
	Latitude        string `yaml:"latitude"`
	Longitude       string `yaml:"longitude"`
	Country         string `yaml:"country"`
	ValuationMethod string `yaml:"valuation_method"`
}

// DefaultColumns returns the column names used by the ESVD export.
func DefaultColumns() Columns {
	return Columns{
		Biome:           "esvd2_0_biome",
		Ecozone:         "esvd2_0_ecozones",
		Ecosystem:       "esvd2_0_ecosystems",
		Service:         "es_1",
		Value:           "int_per_hectare_per_year",
		StudyID:         "study_id",
		Latitude:        "latitude",
		Longitude:       "longitude",
		Country:         "countries",
		ValuationMethod: "valuation_methods",
	}
}

// WithDefaults fills empty names from DefaultColumns.
func (c Columns) WithDefaults() Columns {
	d := DefaultColumns()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&c.Biome, d.Biome)
	fill(&c.Ecozone, d.Ecozone)
	fill(&c.Ecosystem, d.Ecosystem)
	fill(&c.Service, d.Service)
	fill(&c.Value, d.Value)
	fill(&c.StudyID, d.StudyID)
	fill(&c.Latitude, d.Latitude)
	fill(&c.Longitude, d.Longitude)
	fill(&c.Country, d.Country)
	fill(&c.ValuationMethod, d.ValuationMethod)
	return c
}

// Names returns the source column names in a fixed order.
func (c Columns) Names() []string {
	return []string{
		c.Biome, c.Ecozone, c.Ecosystem, c.Service, c.Value,
		c.StudyID, c.Latitude, c.Longitude, c.Country, c.ValuationMethod,
	}
}

// RawRecord is a source row before cleaning. Empty strings are nulls.
type RawRecord struct {
	Biome           string
	Ecozone         string
	Ecosystem       string
	Service         string
	Value           string
	StudyID         string
	Latitude        string
	Longitude       string
	Country         string
	ValuationMethod string
}

// RawFromCells builds a RawRecord from cells ordered as Columns.Names.
func RawFromCells(cells []string) RawRecord {
	at := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return RawRecord{
		Biome:           at(0),
		Ecozone:         at(1),
		Ecosystem:       at(2),
		Service:         at(3),
		Value:           at(4),
		StudyID:         at(5),
		Latitude:        at(6),
		Longitude:       at(7),
		Country:         at(8),
		ValuationMethod: at(9),
	}
}

// Clean coerces a raw row into a Record. It reports false when a required
// field (biome, ecosystem, service, value, study id) is missing or not numeric
// where a number is expected.
func Clean(raw RawRecord) (Record, bool) {
	biome, ok := category(raw.Biome)
	if !ok {
		return Record{}, false
	}
	ecosystem, ok := category(raw.Ecosystem)
	if !ok {
		return Record{}, false
	}
	service, ok := category(raw.Service)
	if !ok {
		return Record{}, false
	}
	value, ok := ParseNumber(raw.Value)
	if !ok {
		return Record{}, false
	}
	studyID, ok := StudyID(raw.StudyID)
	if !ok {
		return Record{}, false
	}

	rec := Record{
		Biome:           biome,
		Ecosystem:       ecosystem,
		Service:         service,
		Value:           value,
		StudyID:         studyID,
		Ecozone:         nullString(raw.Ecozone),
		Country:         nullString(raw.Country),
		ValuationMethod: nullString(raw.ValuationMethod),
	}
	if lat, ok := ParseNumber(raw.Latitude); ok {
		rec.Latitude = sql.NullFloat64{Float64: lat, Valid: true}
	}
	if lon, ok := ParseNumber(raw.Longitude); ok {
		rec.Longitude = sql.NullFloat64{Float64: lon, Valid: true}
	}
	return rec, true
}

// ParseNumber coerces a cell to a float. Unparseable cells, NaN, infinities
// and out-of-range values are nulls. Only decimal notation is accepted, so
// hex literals such as 0x1p3 are nulls too.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if IsNA(s) || isHex(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// StudyID coerces a study identifier to its canonical numeric form, so that
// "12", "12.0" and " 12 " name the same study.
func StudyID(s string) (string, bool) {
	v, ok := ParseNumber(s)
	if !ok {
		return "", false
	}
	return strconv.FormatFloat(v, 'f', -1, 64), true
}

// naTokens are read as missing values, like the default pandas CSV reader.
var naTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsNA reports whether a cell holds a missing value.
func IsNA(s string) bool {
	_, ok := naTokens[strings.TrimSpace(s)]
	return ok
}

func category(s string) (string, bool) {
	if IsNA(s) {
		return "", false
	}
	return s, true
}

func nullString(s string) sql.NullString {
	if IsNA(s) {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Table is the immutable record set shared by every session.
type Table struct {
	records []Record
	dropped int
	source  string
}

// New builds a table from cleaned records. The slice is owned by the table.
func New(source string, records []Record, dropped int) *Table {
	return &Table{records: records, dropped: dropped, source: source}
}

// FromRaw cleans raw rows and builds a table, counting dropped rows.
func FromRaw(source string, raws []RawRecord) *Table {
	records := make([]Record, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		rec, ok := Clean(raw)
		if !ok {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	return New(source, records, dropped)
}

// Records returns the table rows. Callers must not modify the slice.
func (t *Table) Records() []Record { return t.records }

// Len returns the number of rows kept after cleaning.
func (t *Table) Len() int { return len(t.records) }

// Dropped returns the number of rows rejected during cleaning.
func (t *Table) Dropped() int { return t.dropped }

// Source returns where the table was loaded from.
func (t *Table) Source() string { return t.source }

// Services returns the number of distinct service labels in the table.
func (t *Table) Services() int {
	seen := make(map[string]struct{})
	for _, r := range t.records {
		seen[r.Service] = struct{}{}
	}
	return len(seen)
}

// Studies returns the number of distinct study ids in the table.
func (t *Table) Studies() int {
	seen := make(map[string]struct{})
	for _, r := range t.records {
		seen[r.StudyID] = struct{}{}
	}
	return len(seen)
}
