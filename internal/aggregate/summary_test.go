package aggregate

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esvd-explorer/server/internal/data/table"
)

func rec(service, study string, value float64) table.Record {
	return table.Record{Biome: "Marine", Ecosystem: "Coral reefs", Service: service, StudyID: study, Value: value}
}

func TestSummarize_Scenario(t *testing.T) {
	subset := []table.Record{
		rec("A", "1", 10),
		rec("A", "1", 10),
		rec("B", "1", 30),
	}

	s, err := Summarize(subset)
	require.NoError(t, err)
	require.Len(t, s.Rows, 2)

	// sorted by mean descending
	assert.Equal(t, SummaryRow{Service: "B", UniqueStudies: 1, Observations: 1, Mean: 30, Median: 30, Min: 30, Max: 30}, s.Rows[0])
	assert.Equal(t, SummaryRow{Service: "A", UniqueStudies: 1, Observations: 2, Mean: 10, Median: 10, Min: 10, Max: 10}, s.Rows[1])

	assert.Equal(t, SummaryRow{
		Service: TotalLabel, IsTotal: true,
		UniqueStudies: 1, Observations: 3,
		Mean: 40, Median: 10, Min: 10, Max: 30,
	}, s.Total)

	tbl := s.Table()
	require.Len(t, tbl, 3)
	assert.True(t, tbl[2].IsTotal)
}

func TestSummarize_TotalIsSumOfMeans(t *testing.T) {
	subset := []table.Record{
		rec("Food", "1", 1.5),
		rec("Food", "2", 2.25),
		rec("Recreation", "2", 100),
		rec("Water", "3", -4),
		rec("Water", "4", 8),
		rec("Water", "5", 9.125),
	}

	s, err := Summarize(subset)
	require.NoError(t, err)

	sum := 0.0
	for _, r := range s.Rows {
		sum += r.Mean
	}
	assert.InDelta(t, sum, s.Total.Mean, 1e-9)
	assert.Equal(t, 5, s.Total.UniqueStudies)
	assert.Equal(t, 6, s.Total.Observations)
	assert.Equal(t, -4.0, s.Total.Min)
	assert.Equal(t, 100.0, s.Total.Max)
}

func TestSummarize_UniqueStudiesIndependentOfGrouping(t *testing.T) {
	subset := []table.Record{
		rec("A", "1", 1),
		rec("B", "1", 2),
		rec("C", "1", 3),
		rec("C", "2", 4),
	}
	s, err := Summarize(subset)
	require.NoError(t, err)

	perGroup := 0
	for _, r := range s.Rows {
		perGroup += r.UniqueStudies
		assert.LessOrEqual(t, r.UniqueStudies, r.Observations)
	}
	assert.Equal(t, 4, perGroup)
	assert.Equal(t, 2, s.Total.UniqueStudies)
}

func TestSummarize_TiesKeepEncounterOrder(t *testing.T) {
	subset := []table.Record{
		rec("Zeta", "1", 5),
		rec("Alpha", "2", 5),
		rec("Mid", "3", 7),
	}
	s, err := Summarize(subset)
	require.NoError(t, err)

	var services []string
	for _, r := range s.Rows {
		services = append(services, r.Service)
	}
	assert.Equal(t, []string{"Mid", "Zeta", "Alpha"}, services)
}

func TestSummarize_Empty(t *testing.T) {
	_, err := Summarize(nil)
	assert.ErrorIs(t, err, ErrEmptySubset)
}

func TestSummary_Rounded(t *testing.T) {
	s, err := Summarize([]table.Record{rec("A", "1", 1.005), rec("A", "2", 2.3333)})
	require.NoError(t, err)

	rows := s.Rounded()
	require.Len(t, rows, 2)
	assert.Equal(t, 1.67, rows[0].Mean)
	assert.Equal(t, 2.33, rows[0].Max)
	// unrounded values are kept on the summary
	assert.InDelta(t, 1.66915, s.Rows[0].Mean, 1e-9)
}

func TestSummarize_ExtremeValuesStayEncodable(t *testing.T) {
	s, err := Summarize([]table.Record{rec("A", "1", -1e308), rec("A", "2", 1e308)})
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.Rows[0].Median)
	assert.Equal(t, 0.0, s.Rows[0].Mean)
	assert.Equal(t, 0.0, s.Total.Median)

	_, err = json.Marshal(s.Rounded())
	assert.NoError(t, err)
}

func TestSummaryRow_NonFiniteEncodesAsNull(t *testing.T) {
	// two service means near the float limit: their sum overflows
	s, err := Summarize([]table.Record{rec("A", "1", 1e308), rec("B", "2", 1e308)})
	require.NoError(t, err)
	require.True(t, math.IsInf(s.Total.Mean, 1))

	data, err := json.Marshal(s.Rounded())
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, TotalLabel, rows[2]["service"])
	assert.Nil(t, rows[2]["mean"])
	assert.Equal(t, 1e308, rows[2]["max"])
	assert.Equal(t, 1e308, rows[0]["mean"])
}
