// Package exporter writes tabular audit data to disk.
//
// Every format renders the same Table:
//
// CSVWriter: CSV with an optional UTF-8 BOM so spreadsheet tools detect the
// encoding.
//
// XLSXWriter: a single-sheet workbook with a bold header row.
//
// TextWriter: a human readable audit sheet listing each row as labelled
// fields.
//
// Example usage:
//
//	w, err := exporter.ForFormat("csv")
//	if err != nil {
//		return err
//	}
//	name := exporter.FileName("license_codes", time.Now(), "", w.Extension())
//	err = w.Write(filepath.Join(dir, name), table)
package exporter
