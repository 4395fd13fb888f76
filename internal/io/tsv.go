package io

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// NA is written for missing values
const NA = "n/a"

// Table is a tab-separated table with a header line
type Table struct {
	Header []string
	Rows   [][]string
}

// NewTable returns an empty table with the given header
func NewTable(header ...string) *Table {
	return &Table{Header: header}
}

// Col returns the index of column name, or -1
func (t *Table) Col(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Append adds a row. Short rows are padded with NA.
func (t *Table) Append(row ...string) {
	for len(row) < len(t.Header) {
		row = append(row, NA)
	}
	t.Rows = append(t.Rows, row)
}

// Value returns the cell of row i in column name, or NA when either is absent
func (t *Table) Value(i int, name string) string {
	c := t.Col(name)
	if c < 0 || i < 0 || i >= len(t.Rows) || c >= len(t.Rows[i]) {
		return NA
	}
	return t.Rows[i][c]
}

// ReadTable reads a tab-separated file whose first line is the header
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadTable: failed to open file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ReadTable: failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ReadTable: %s has no header", path)
	}

	t := NewTable(trimAll(records[0])...)
	for _, rec := range records[1:] {
		t.Append(trimAll(rec)...)
	}

	return t, nil
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, s := range rec {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

// WriteTable saves t as a tab-separated file
func WriteTable(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("WriteTable: failed to open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'

	if err := w.Write(t.Header); err != nil {
		return fmt.Errorf("WriteTable: %s: %w", path, err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("WriteTable: %s: %w", path, err)
	}

	return f.Close()
}

// FormatFloat renders v in shortest form, NA for NaN
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return NA
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseInt reads an integer cell. Float notation such as "3.0" is accepted.
func ParseInt(s string) (int, bool) {
	if s == "" || s == NA {
		return 0, false
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v != math.Trunc(v) {
		return 0, false
	}
	return int(v), true
}

// Mat64toTSV saves Mat64 as a tab-separated file without header
func Mat64toTSV(path string, matrix *mat64.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("Mat64toTSV: failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, _ := matrix.Dims()

	stride := runtime.NumCPU()
	parsed := make([]string, stride)

	for row := 0; row < rows; row += stride {
		var wg sync.WaitGroup
		jobMark := stride

		if row+stride >= rows {
			jobMark = rows - row
		}

		wg.Add(jobMark)
		for offset := 0; offset < jobMark; offset++ {
			go formatLine(matrix, parsed, offset, row, &wg)
		}
		wg.Wait()

		for i := 0; i < jobMark; i++ {
			if _, err := fmt.Fprintf(f, "%s\n", parsed[i]); err != nil {
				return fmt.Errorf("Mat64toTSV: %s: %w", path, err)
			}
		}
	}

	return f.Close()
}

func formatLine(matrix *mat64.Dense, parsed []string, offset int, row int, wg *sync.WaitGroup) {
	values := matrix.RawRowView(row + offset)
	fields := make([]string, len(values))
	for i, v := range values {
		fields[i] = FormatFloat(v)
	}

	parsed[offset] = strings.Join(fields, "\t")

	wg.Done()
}
