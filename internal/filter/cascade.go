// Package filter implements the cascading biome → ecozone → ecosystem filter.
//
// Each level's options are derived from the records left by the levels above
// it. A held selection is repaired against the fresh options before it is
// used to filter, so a stale value never filters against an option that no
// longer exists.
package filter

import (
	"errors"
	"fmt"
	"sort"

	"github.com/esvd-explorer/server/internal/data/table"
)

// Fatal pipeline conditions. Each stops the render cycle.
var (
	ErrNoData           = errors.New("no data")
	ErrEmptyBiome       = errors.New("no data for selected biome")
	ErrEmptyEcozone     = errors.New("no data for selected ecozone within biome")
	ErrEmptyEcosystem   = errors.New("no data for selected ecosystem")
	ErrEmptyCombination = errors.New("no records for selected filter combination")
)

// IsFatal reports whether err is one of the fatal pipeline conditions.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNoData) ||
		errors.Is(err, ErrEmptyBiome) ||
		errors.Is(err, ErrEmptyEcozone) ||
		errors.Is(err, ErrEmptyEcosystem) ||
		errors.Is(err, ErrEmptyCombination)
}

// Level names a filter level.
type Level string

const (
	LevelBiome     Level = "biome"
	LevelEcozone   Level = "ecozone"
	LevelEcosystem Level = "ecosystem"
	LevelService   Level = "service"
)

// ParseLevel converts a level name.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelBiome, LevelEcozone, LevelEcosystem, LevelService:
		return Level(s), nil
	}
	return "", fmt.Errorf("unknown filter level %q", s)
}

func distinctSorted(records []table.Record, field func(table.Record) (string, bool)) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range records {
		v, ok := field(r)
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func options(values []string, withAll bool) Options {
	n := len(values)
	if withAll {
		n++
	}
	out := make(Options, 0, n)
	if withAll {
		out = append(out, All())
	}
	for _, v := range values {
		out = append(out, Value(v))
	}
	return out
}

func biomeOf(r table.Record) (string, bool)     { return r.Biome, true }
func ecozoneOf(r table.Record) (string, bool)   { return r.Ecozone.String, r.Ecozone.Valid }
func ecosystemOf(r table.Record) (string, bool) { return r.Ecosystem, true }
func serviceOf(r table.Record) (string, bool)   { return r.Service, true }

// BiomeOptions returns the distinct biomes, sorted. There is no ALL option.
func BiomeOptions(records []table.Record) Options {
	return options(distinctSorted(records, biomeOf), false)
}

// EcozoneOptions returns ALL followed by the distinct non-null ecozones, sorted.
func EcozoneOptions(subset []table.Record) Options {
	return options(distinctSorted(subset, ecozoneOf), true)
}

// EcosystemOptions returns ALL followed by the distinct ecosystems, sorted.
func EcosystemOptions(subset []table.Record) Options {
	return options(distinctSorted(subset, ecosystemOf), true)
}

// ServiceOptions returns ALL followed by the distinct services, sorted.
// It backs the map-only service selector.
func ServiceOptions(subset []table.Record) Options {
	return options(distinctSorted(subset, serviceOf), true)
}

func filterBy(records []table.Record, sel Selection, field func(table.Record) (string, bool)) []table.Record {
	if sel.IsAll() {
		return records
	}
	out := make([]table.Record, 0)
	for _, r := range records {
		v, ok := field(r)
		if ok && sel.Matches(v) {
			out = append(out, r)
		}
	}
	return out
}

// FilterByBiome keeps the records of the selected biome. ALL is not a biome
// option, so it is treated like any other selection outside the option set.
func FilterByBiome(records []table.Record, sel Selection) ([]table.Record, error) {
	var out []table.Record
	if cat, ok := sel.Category(); ok {
		out = filterBy(records, Value(cat), biomeOf)
	}
	if len(out) == 0 {
		return nil, ErrEmptyBiome
	}
	return out, nil
}

// FilterByEcozone returns subset unchanged for ALL, else the matching rows.
func FilterByEcozone(subset []table.Record, sel Selection) ([]table.Record, error) {
	out := filterBy(subset, sel, ecozoneOf)
	if len(out) == 0 {
		return nil, ErrEmptyEcozone
	}
	return out, nil
}

// FilterByEcosystem returns subset unchanged for ALL, else the matching rows.
// An empty result is the final, combined filter coming up empty.
func FilterByEcosystem(subset []table.Record, sel Selection) ([]table.Record, error) {
	out := filterBy(subset, sel, ecosystemOf)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrEmptyCombination, ErrEmptyEcosystem)
	}
	return out, nil
}

// FilterByService returns subset unchanged for ALL, else the rows of that service.
// The result may be empty.
func FilterByService(subset []table.Record, sel Selection) []table.Record {
	return filterBy(subset, sel, serviceOf)
}
