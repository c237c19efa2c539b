package issuer

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"nodelock/internal/exporter"
)

// ExportPrefix starts every batch export file name
const ExportPrefix = "license_codes"

var exportHeaders = []string{"Machine Code", "License Code", "Issued At", "Batch ID"}

// BatchTable converts a batch to an export table
func BatchTable(b *Batch) exporter.Table {
	rows := make([][]string, len(b.Entries))
	for i, e := range b.Entries {
		rows[i] = []string{
			string(e.MachineCode),
			string(e.LicenseCode),
			e.IssuedAt.Local().Format("2006-01-02 15:04:05"),
			b.ID,
		}
	}
	return exporter.Table{
		Title:       "License Codes Generated",
		Sheet:       "License Codes",
		GeneratedAt: b.CreatedAt.Local(),
		Headers:     exportHeaders,
		Rows:        rows,
	}
}

// exportTagLen is how much of the batch id goes into export file names
const exportTagLen = 8

// Export writes the batch to dir once per format, concurrently. File names
// are license_codes_<YYYYMMDD_HHMMSS>_<batch id prefix>.<ext>, so batches
// created within the same second do not overwrite each other. The written
// paths are returned in format order.
func Export(ctx context.Context, b *Batch, dir string, formats []string) ([]string, error) {
	writers := make([]exporter.Writer, 0, len(formats))
	seen := make(map[string]bool)
	for _, format := range formats {
		key := strings.ToLower(strings.TrimSpace(format))
		if seen[key] {
			continue
		}
		seen[key] = true

		w, err := exporter.ForFormat(key)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	table := BatchTable(b)
	stamp := b.CreatedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	stamp = stamp.Local()
	tag := exportTag(b.ID)

	paths := make([]string, len(writers))
	g, ctx := errgroup.WithContext(ctx)
	for i, w := range writers {
		w := w
		path := filepath.Join(dir, exporter.FileName(ExportPrefix, stamp, tag, w.Extension()))
		paths[i] = path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return w.Write(path, table)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func exportTag(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > exportTagLen {
		id = id[:exportTagLen]
	}
	return id
}
