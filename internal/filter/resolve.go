package filter

import (
	"strings"

	"github.com/esvd-explorer/server/internal/data/table"
)

// Chain holds the selections of the three cascading levels.
type Chain struct {
	Biome     Selection `json:"biome"`
	Ecozone   Selection `json:"ecozone"`
	Ecosystem Selection `json:"ecosystem"`
}

// Labels returns the display labels of the three levels.
func (c Chain) Labels() [3]string {
	return [3]string{c.Biome.Label(), c.Ecozone.Label(), c.Ecosystem.Label()}
}

// Key is a stable identifier of the chain, used for cache keys.
func (c Chain) Key() string {
	return strings.Join([]string{c.Biome.String(), c.Ecozone.String(), c.Ecosystem.String()}, "|")
}

// Stage is the outcome of one level: its options and the repaired selection.
type Stage struct {
	Options  Options   `json:"options"`
	Selected Selection `json:"selected"`
	// Rows is the number of records left after this level's filter.
	Rows int `json:"rows"`
}

// Resolution is the result of running the cascade. On a fatal error the
// stages computed before the failure are still populated.
type Resolution struct {
	Chain     Chain          `json:"chain"`
	Biome     *Stage         `json:"biome,omitempty"`
	Ecozone   *Stage         `json:"ecozone,omitempty"`
	Ecosystem *Stage         `json:"ecosystem,omitempty"`
	Records   []table.Record `json:"-"`
}

// Resolve runs the cascade over records with the held selections in chain.
// For each level it computes the options from the upstream subset, repairs
// the held selection and filters. The biome falls back to its first option;
// ecozone and ecosystem fall back to ALL.
func Resolve(records []table.Record, chain Chain) (Resolution, error) {
	var res Resolution

	biomes := BiomeOptions(records)
	if len(biomes) == 0 {
		return res, ErrNoData
	}
	res.Chain.Biome = Repair(chain.Biome, biomes, biomes[0])
	byBiome, err := FilterByBiome(records, res.Chain.Biome)
	res.Biome = &Stage{Options: biomes, Selected: res.Chain.Biome, Rows: len(byBiome)}
	if err != nil {
		return res, err
	}

	ecozones := EcozoneOptions(byBiome)
	res.Chain.Ecozone = Repair(chain.Ecozone, ecozones, All())
	byEcozone, err := FilterByEcozone(byBiome, res.Chain.Ecozone)
	res.Ecozone = &Stage{Options: ecozones, Selected: res.Chain.Ecozone, Rows: len(byEcozone)}
	if err != nil {
		return res, err
	}

	ecosystems := EcosystemOptions(byEcozone)
	res.Chain.Ecosystem = Repair(chain.Ecosystem, ecosystems, All())
	byEcosystem, err := FilterByEcosystem(byEcozone, res.Chain.Ecosystem)
	res.Ecosystem = &Stage{Options: ecosystems, Selected: res.Chain.Ecosystem, Rows: len(byEcosystem)}
	if err != nil {
		return res, err
	}

	res.Records = byEcosystem
	return res, nil
}

// ResolveService repairs the map-only service selection against the services
// present in subset, falling back to ALL.
func ResolveService(subset []table.Record, held Selection) Stage {
	opts := ServiceOptions(subset)
	sel := Repair(held, opts, All())
	return Stage{Options: opts, Selected: sel, Rows: len(FilterByService(subset, sel))}
}
