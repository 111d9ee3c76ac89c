package services

import (
	"context"
	"fmt"

	"recur/internal/log"
	"recur/internal/sheets"
)

// ImportService loads transactions from a tabular source through the
// ingestion rules.
type ImportService struct {
	source    sheets.TransactionSource
	ingestion *IngestionService
	logger    *log.Logger
}

func NewImportService(source sheets.TransactionSource, ingestion *IngestionService) *ImportService {
	return &ImportService{
		source:    source,
		ingestion: ingestion,
		logger:    log.Default().WithComponent(log.ComponentImport),
	}
}

// Import reads every record of the source and stores them as one batch.
func (s *ImportService) Import(ctx context.Context) (IngestResult, error) {
	records, err := s.source.ReadRecords(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("read source: %w", err)
	}
	s.logger.InfoContext(ctx, "Records read from source", "records", len(records))

	res, err := s.ingestion.IngestRecords(ctx, records)
	if err != nil {
		return IngestResult{}, err
	}
	return res, nil
}
