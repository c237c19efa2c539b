package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter renders a Table as RFC 4180 CSV
type CSVWriter struct {
	bom bool
}

// NewCSVWriter creates a CSV writer. With bom set the output starts with a
// UTF-8 byte order mark so spreadsheet tools pick the right encoding.
func NewCSVWriter(bom bool) *CSVWriter {
	return &CSVWriter{bom: bom}
}

func (w *CSVWriter) Extension() string { return "csv" }

func (w *CSVWriter) Write(path string, t Table) error {
	return writeFile(path, func(out io.Writer) error { return w.Encode(out, t) })
}

// Encode streams t to out: the header row when present, then every row
func (w *CSVWriter) Encode(out io.Writer, t Table) error {
	if w.bom {
		if _, err := out.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	cw := csv.NewWriter(out)
	if len(t.Headers) > 0 {
		if err := cw.Write(t.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
