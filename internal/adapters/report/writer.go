package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"shelfsync/internal/core/domain/models"
	"shelfsync/internal/core/domain/ports"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// Ensure both writers implement ReportWriter
var (
	_ ports.ReportWriter = (*CSVWriter)(nil)
	_ ports.ReportWriter = (*XLSXWriter)(nil)
)

const sheetName = "Import Report"

// New picks the writer from the file extension: .xlsx gets a workbook,
// anything else gets CSV.
func New(path string) ports.ReportWriter {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return &XLSXWriter{path: path}
	}
	return &CSVWriter{path: path}
}

// cells lays a row out in column order. Import Result always comes from the
// row's final result, never from a stale input value.
func cells(columns []string, row *models.ImportRow) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		if col == models.ColImportResult {
			out[i] = row.Result
			continue
		}
		out[i] = row.Get(col)
	}
	return out
}

type CSVWriter struct {
	path string
}

func (w *CSVWriter) Write(columns []string, rows []*models.ImportRow) error {
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(cells(columns, row)); err != nil {
			return fmt.Errorf("failed to write report row %d: %w", row.Index, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	log.Info().Str("path", w.path).Int("rows", len(rows)).Msg("Report written")
	return f.Close()
}

type XLSXWriter struct {
	path string
}

func (w *XLSXWriter) Write(columns []string, rows []*models.ImportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	for colIdx, header := range columns {
		cell, _ := excelize.CoordinatesToCellName(colIdx+1, 1)
		if err := f.SetCellStr(sheetName, cell, header); err != nil {
			return err
		}
	}
	if len(columns) > 0 {
		headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err == nil {
			last, _ := excelize.CoordinatesToCellName(len(columns), 1)
			_ = f.SetCellStyle(sheetName, "A1", last, headerStyle)
		}
	}

	for i, row := range rows {
		for colIdx, v := range cells(columns, row) {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, i+2)
			// Cells are written as text so values like ="0441013597" survive untouched.
			if err := f.SetCellStr(sheetName, cell, v); err != nil {
				return fmt.Errorf("failed to write report row %d: %w", row.Index, err)
			}
		}
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save report %s: %w", w.path, err)
	}
	log.Info().Str("path", w.path).Int("rows", len(rows)).Msg("Report written")
	return nil
}
