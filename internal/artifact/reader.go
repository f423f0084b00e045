package artifact

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// Row is one data row addressed by column name.
type Row struct {
	Line   int
	fields map[string]string
}

// Get returns the named field, or "" when the column is absent.
func (r Row) Get(column string) string {
	return r.fields[column]
}

// Has reports whether the row carries the named column.
func (r Row) Has(column string) bool {
	_, ok := r.fields[column]
	return ok
}

// NewRow builds a row from a column map.
func NewRow(line int, fields map[string]string) Row {
	return Row{Line: line, fields: fields}
}

// ReadResult holds the well-formed rows of one artifact and the lines that could not be split.
type ReadResult struct {
	Rows      []Row
	Malformed []int
}

// SchemaError reports a header that lacks a column the variant needs.
type SchemaError struct {
	Path   string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("artifact %s is missing required column %q", e.Path, e.Column)
}

// Read loads an artifact. Columns are resolved by header name, so column order does not matter.
// Rows whose field count differs from the header are reported in Malformed and skipped.
func Read(a Artifact) (*ReadResult, error) {
	f, err := os.Open(a.Path) // #nosec G304 - path comes from Discover
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()
	return ReadFrom(f, a)
}

// ReadFrom is Read over an arbitrary reader.
func ReadFrom(r io.Reader, a Artifact) (*ReadResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &ReadResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	for _, col := range requiredColumns[a.Kind] {
		if _, ok := index[col]; !ok {
			return nil, &SchemaError{Path: a.Path, Column: col}
		}
	}

	res := &ReadResult{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			res.Malformed = append(res.Malformed, line)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact row %d: %w", line, err)
		}
		if len(rec) != len(header) {
			res.Malformed = append(res.Malformed, line)
			continue
		}

		fields := make(map[string]string, len(header))
		for col, i := range index {
			fields[col] = rec[i]
		}
		res.Rows = append(res.Rows, Row{Line: line, fields: fields})
	}
	return res, nil
}
