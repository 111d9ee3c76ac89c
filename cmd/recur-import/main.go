package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"recur/internal/cli"
	"recur/internal/config"
	"recur/internal/core"
	"recur/internal/log"
	"recur/internal/services"
	"recur/internal/sheets"
	"recur/internal/sheets/file"
	gsheet "recur/internal/sheets/google"
)

func main() {
	source := flag.String("source", "sheets", "where to read transactions from: sheets or csv")
	path := flag.String("file", "", "CSV file to import when -source=csv")
	skip := flag.Int("skip", -1, "leading rows to skip (default GOOGLE_SHEET_SKIP_ROWS for sheets, 1 for csv)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall import deadline")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentImport)
	cfg := cli.LoadAndValidateConfig(logger)
	switch {
	case *skip >= 0:
		cfg.GoogleSheetSkipRows = *skip
	case *source == "csv":
		cfg.GoogleSheetSkipRows = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	src, err := newSource(ctx, *source, *path, cfg)
	if err != nil {
		logger.Error("Failed to initialize source", log.FieldError, err, log.FieldSource, *source)
		os.Exit(1)
	}

	be := cli.InitBackend(ctx, logger, cfg)
	defer be.Cleanup()

	ingestion := services.NewIngestionService(be.Store, be.Publisher, nil)
	res, err := services.NewImportService(src, ingestion).Import(ctx)
	if err != nil {
		var batchErr *core.BatchError
		if errors.As(err, &batchErr) {
			for _, pos := range batchErr.Positions() {
				logger.Error("Invalid row", "record", pos+1, "errors", batchErr.Errors[pos])
			}
		}
		logger.Error("Import failed", log.FieldError, err, log.FieldSource, *source)
		be.Cleanup()
		os.Exit(1)
	}

	logger.Info("Import completed",
		log.FieldSource, *source,
		"received", res.Received,
		log.FieldInserted, res.Inserted,
		log.FieldSkipped, res.Skipped,
		log.FieldUsers, len(res.Users))
}

func newSource(ctx context.Context, kind, path string, cfg *config.Config) (sheets.TransactionSource, error) {
	switch kind {
	case "sheets":
		return gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			SkipRows:           cfg.GoogleSheetSkipRows,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		})
	case "csv":
		if path == "" {
			return nil, errors.New("-file is required with -source=csv")
		}
		return file.NewCSVSource(path, cfg.GoogleSheetSkipRows), nil
	default:
		return nil, fmt.Errorf("unknown source %q: must be sheets or csv", kind)
	}
}
