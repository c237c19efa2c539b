package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// XLSXWriter renders a Table as a single-sheet workbook
type XLSXWriter struct {
	columnWidth float64
}

// NewXLSXWriter creates an XLSX writer
func NewXLSXWriter() *XLSXWriter {
	return &XLSXWriter{columnWidth: 24}
}

func (w *XLSXWriter) Extension() string { return "xlsx" }

// Write renders t into a new workbook at path
func (w *XLSXWriter) Write(path string, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := defaultSheet
	if t.Sheet != "" && t.Sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, t.Sheet); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
		sheet = t.Sheet
	}

	row := 1
	if len(t.Headers) > 0 {
		if err := setRow(f, sheet, row, t.Headers); err != nil {
			return err
		}
		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}
		if err := f.SetRowStyle(sheet, row, row, bold); err != nil {
			return fmt.Errorf("failed to style header row: %w", err)
		}

		lastCol, err := excelize.ColumnNumberToName(len(t.Headers))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, "A", lastCol, w.columnWidth); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
		row++
	}

	for _, record := range t.Rows {
		if err := setRow(f, sheet, row, record); err != nil {
			return err
		}
		row++
	}

	return writeFile(path, func(out io.Writer) error {
		if _, err := f.WriteTo(out); err != nil {
			return fmt.Errorf("failed to save workbook: %w", err)
		}
		return nil
	})
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}
