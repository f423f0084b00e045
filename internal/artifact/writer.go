package artifact

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// Writer streams rows of one artifact in its variant's column order.
type Writer struct {
	f       *os.File
	csv     *csv.Writer
	columns []string
	rows    int
}

// Create opens (truncating) the artifact file for kind/symbol/address in dir and writes the header.
func Create(dir string, kind Kind, symbol, address string) (*Writer, error) {
	path := filepath.Join(dir, Name(kind, symbol, address))
	f, err := os.Create(path) // #nosec G304 - name is derived from validated input
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}

	w := &Writer{f: f, csv: csv.NewWriter(f), columns: Columns(kind)}
	if err := w.csv.Write(w.columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write artifact header: %w", err)
	}
	return w, nil
}

// Write appends one row; missing fields are written empty.
func (w *Writer) Write(fields map[string]string) error {
	rec := make([]string, len(w.columns))
	for i, col := range w.columns {
		rec[i] = fields[col]
	}
	if err := w.csv.Write(rec); err != nil {
		return fmt.Errorf("failed to write artifact row: %w", err)
	}
	w.rows++
	return nil
}

// Rows returns how many data rows have been written.
func (w *Writer) Rows() int {
	return w.rows
}

// Path returns the artifact file path.
func (w *Writer) Path() string {
	return w.f.Name()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to flush artifact: %w", err)
	}
	return w.f.Close()
}

// Discard closes the file and removes it. Used when a fetch breaks off mid-asset.
func (w *Writer) Discard() error {
	_ = w.f.Close()
	if err := os.Remove(w.f.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove partial artifact: %w", err)
	}
	return nil
}
