package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"shelfsync/internal/core/domain/models"
	"shelfsync/internal/core/domain/ports"
	"strings"
)

// Ensure CSVSource implements RowSource
var _ ports.RowSource = (*CSVSource)(nil)

const utf8BOM = "\ufeff"

// CSVSource reads a Goodreads library export.
type CSVSource struct {
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) LoadRows(ctx context.Context) (*models.Batch, error) {
	if s.path == "" {
		return nil, errors.New("CSV path is not configured")
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	return ReadCSV(ctx, f)
}

// ReadCSV parses an export from r. The first record is the header. Short
// rows are padded with empty fields.
func ReadCSV(ctx context.Context, r io.Reader) (*models.Batch, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &models.Batch{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	batch := &models.Batch{Columns: header}
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				fields[col] = record[i]
			} else {
				fields[col] = ""
			}
		}
		batch.Rows = append(batch.Rows, &models.ImportRow{Index: len(batch.Rows), Fields: fields})
	}
	return batch, nil
}
