// Package file reads transactions from a local CSV export.
package file

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"recur/internal/core"
	ports "recur/internal/sheets"
)

// CSVSource reads a CSV file whose columns follow sheets.Columns.
type CSVSource struct {
	path     string
	skipRows int
}

var _ ports.TransactionSource = (*CSVSource)(nil)

func NewCSVSource(path string, skipRows int) *CSVSource {
	return &CSVSource{path: path, skipRows: skipRows}
}

func (s *CSVSource) ReadRecords(ctx context.Context) ([]core.Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()
	return ReadCSV(ctx, f, s.skipRows)
}

// ReadCSV parses CSV rows from r. Rows may have fewer fields than the header.
func ReadCSV(ctx context.Context, r io.Reader, skipRows int) ([]core.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, row)
	}
	return ports.RecordsFromRows(rows, skipRows), nil
}
