package flatfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = ` esvd2_0_biome ,esvd2_0_ecozones,esvd2_0_ecosystems,es_1,int_per_hectare_per_year,study_id,latitude,longitude,countries,valuation_methods
Marine,Coastal,Coral reefs,Food,120.5,1,10.5,-80.25,Panama,Market price
Marine,,Seagrass,Food,30,2.0,,,Spain,
Marine,Coastal,Coral reefs,Recreation,not-a-number,3,1,1,Chile,Travel cost
,Coastal,Coral reefs,Food,5,4,1,1,Chile,Travel cost
Forest,Temperate,Woodland,Timber,-12,x,1,1,France,
`

func TestRead(t *testing.T) {
	raws, err := Read(strings.NewReader(sampleCSV), Options{})
	require.NoError(t, err)
	require.Len(t, raws, 5)

	assert.Equal(t, "Marine", raws[0].Biome)
	assert.Equal(t, "120.5", raws[0].Value)
	assert.Equal(t, "Market price", raws[0].ValuationMethod)
	assert.Equal(t, "", raws[1].Ecozone)
}

func TestLoad_DropsIncompleteRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))

	tbl, err := Load(path, Options{})
	require.NoError(t, err)

	// unparseable value, missing biome and non-numeric study id are dropped
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, 3, tbl.Dropped())

	recs := tbl.Records()
	assert.Equal(t, "2", recs[1].StudyID)
	assert.False(t, recs[1].Ecozone.Valid)
	assert.False(t, recs[1].HasCoordinates())
	assert.True(t, recs[0].HasCoordinates())
	assert.InDelta(t, -80.25, recs[0].Longitude.Float64, 1e-9)
}

func TestRead_Semicolon(t *testing.T) {
	data := strings.ReplaceAll(sampleCSV, ",", ";")
	raws, err := Read(strings.NewReader(data), Options{})
	require.NoError(t, err)
	require.Len(t, raws, 5)
	assert.Equal(t, "Coral reefs", raws[0].Ecosystem)
}

func TestRead_MissingColumn(t *testing.T) {
	_, err := Read(strings.NewReader("a,b\n1,2\n"), Options{})
	require.ErrorIs(t, err, ErrMissingColumn)

	_, err = Read(strings.NewReader(""), Options{})
	require.ErrorIs(t, err, ErrMissingColumn)
}

func TestLoad_Compressed(t *testing.T) {
	dir := t.TempDir()

	t.Run("gzip", func(t *testing.T) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, err := zw.Write([]byte(sampleCSV))
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		path := filepath.Join(dir, "records.csv.gz")
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

		tbl, err := Load(path, Options{})
		require.NoError(t, err)
		assert.Equal(t, 2, tbl.Len())
	})

	t.Run("zstd", func(t *testing.T) {
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		payload := enc.EncodeAll([]byte(sampleCSV), nil)
		require.NoError(t, enc.Close())

		path := filepath.Join(dir, "records.csv.zst")
		require.NoError(t, os.WriteFile(path, payload, 0644))

		tbl, err := Load(path, Options{})
		require.NoError(t, err)
		assert.Equal(t, 2, tbl.Len())
	})
}
