package exporter

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// TextWriter renders a Table as a plain text audit sheet
type TextWriter struct {
	ruleWidth int
}

// NewTextWriter creates a text writer
func NewTextWriter() *TextWriter {
	return &TextWriter{ruleWidth: 50}
}

func (w *TextWriter) Extension() string { return "txt" }

// Write lists every row as "Header: value" lines between rules
func (w *TextWriter) Write(path string, t Table) error {
	return writeFile(path, func(out io.Writer) error { return w.Encode(out, t) })
}

// Encode renders the audit sheet to out
func (w *TextWriter) Encode(out io.Writer, t Table) error {
	generated := t.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	bw := bufio.NewWriter(out)
	if t.Title != "" {
		fmt.Fprintln(bw, t.Title)
	}
	fmt.Fprintf(bw, "Generated: %s\n", generated.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "Entries: %d\n", len(t.Rows))
	fmt.Fprintln(bw, strings.Repeat("=", w.ruleWidth))

	for _, row := range t.Rows {
		fmt.Fprintln(bw)
		for i, value := range row {
			label := fmt.Sprintf("Column %d", i+1)
			if i < len(t.Headers) {
				label = t.Headers[i]
			}
			fmt.Fprintf(bw, "%s: %s\n", label, value)
		}
		fmt.Fprintln(bw, strings.Repeat("-", w.ruleWidth))
	}
	return bw.Flush()
}
