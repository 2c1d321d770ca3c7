// Package flatfile reads valuation records from delimited text files.
// Plain, gzip (.gz) and zstd (.zst) compressed files are supported.
package flatfile

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/esvd-explorer/server/internal/data/table"
)

// ErrMissingColumn is returned when a required column is absent from the header.
var ErrMissingColumn = errors.New("missing column")

// Options controls how a file is parsed.
type Options struct {
	Columns table.Columns
	// Comma is the field delimiter. Zero auto-detects among ',', ';' and tab.
	Comma rune
}

// Load reads the file at path and returns the cleaned table.
func Load(path string, opts Options) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r, closeFn, err := decompress(f, path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	raws, err := Read(r, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return table.FromRaw(path, raws), nil
}

func decompress(f *os.File, path string) (io.Reader, func(), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip open failed: %w", err)
		}
		return zr, func() { zr.Close() }, nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return f, func() {}, nil
	}
}

// Read parses delimited text with a header row into raw records.
func Read(r io.Reader, opts Options) ([]table.RawRecord, error) {
	cols := opts.Columns.WithDefaults()

	br := bufio.NewReader(r)
	comma := opts.Comma
	if comma == 0 {
		head, _ := br.Peek(4096)
		comma = detectComma(head)
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: %w", ErrMissingColumn)
		}
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	names := cols.Names()
	positions := make([]int, len(names))
	for i, name := range names {
		pos, ok := index[name]
		if !ok {
			pos = -1
		}
		positions[i] = pos
	}
	for _, required := range []string{cols.Biome, cols.Ecosystem, cols.Service, cols.Value, cols.StudyID} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	var raws []table.RawRecord
	cells := make([]string, len(names))
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for i, pos := range positions {
			cells[i] = ""
			if pos >= 0 && pos < len(row) {
				cells[i] = row[pos]
			}
		}
		raws = append(raws, table.RawFromCells(cells))
	}
	return raws, nil
}

// detectComma picks the delimiter that splits the header line into the most fields.
func detectComma(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	best, bestCount := ',', 0
	for _, c := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(c))); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}
