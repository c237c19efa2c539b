package exporter

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileTimestampLayout is the timestamp embedded in export file names
const FileTimestampLayout = "20060102_150405"

// Table is the format-neutral content of one export
type Table struct {
	Title       string
	Sheet       string
	GeneratedAt time.Time
	Headers     []string
	Rows        [][]string
}

// Writer renders a Table to a file
type Writer interface {
	Extension() string
	Write(path string, t Table) error
}

var writers = map[string]func() Writer{
	"txt":  func() Writer { return NewTextWriter() },
	"csv":  func() Writer { return NewCSVWriter(true) },
	"xlsx": func() Writer { return NewXLSXWriter() },
}

// ForFormat returns the writer for a format name (txt, csv or xlsx)
func ForFormat(format string) (Writer, error) {
	newWriter, ok := writers[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, fmt.Errorf("unsupported export format %q (supported: %s)", format, strings.Join(Formats(), ", "))
	}
	return newWriter(), nil
}

// Formats lists the supported format names
func Formats() []string {
	names := make([]string, 0, len(writers))
	for name := range writers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FileName builds "<prefix>_<YYYYMMDD_HHMMSS>_<tag>.<ext>". An empty tag is
// left out.
func FileName(prefix string, at time.Time, tag, ext string) string {
	name := prefix + "_" + at.Format(FileTimestampLayout)
	if tag != "" {
		name += "_" + tag
	}
	return name + "." + ext
}

// writeFile creates path through a temporary sibling so an interrupted export
// never leaves a truncated file behind. Exports hold license codes and are
// readable by the owner only.
func writeFile(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}

	slog.Debug("Export written", slog.String("file_path", path))
	return nil
}
