package services

import (
	"context"
	"sort"
	"time"

	"recur/internal/core"
	"recur/internal/log"
	"recur/internal/middleware/trace"
)

// IngestResult summarises an accepted batch.
type IngestResult struct {
	Received int      `json:"received"`
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Users    []string `json:"-"`
}

// Invalidator forgets derived data for users whose history changed.
type Invalidator interface {
	Invalidate(userIDs ...string)
}

// IngestionService validates and stores batches of transactions.
type IngestionService struct {
	store       TransactionStore
	publisher   DetectionPublisher
	invalidator Invalidator
	logger      *log.Logger
}

// NewIngestionService creates the service. publisher and invalidator may be nil.
func NewIngestionService(store TransactionStore, publisher DetectionPublisher, invalidator Invalidator) *IngestionService {
	return &IngestionService{
		store:       store,
		publisher:   publisher,
		invalidator: invalidator,
		logger:      log.Default().WithComponent(log.ComponentIngestion),
	}
}

// IngestJSON validates a JSON array of records and stores it. An invalid
// batch returns core.ErrEmptyBatch or a *core.BatchError and stores nothing.
func (s *IngestionService) IngestJSON(ctx context.Context, body []byte) (IngestResult, error) {
	txs, err := core.ParseBatch(body)
	if err != nil {
		return IngestResult{}, err
	}
	return s.ingest(ctx, txs)
}

// IngestRecords validates already decoded records and stores them.
func (s *IngestionService) IngestRecords(ctx context.Context, records []core.Record) (IngestResult, error) {
	txs, err := core.ValidateRecords(records)
	if err != nil {
		return IngestResult{}, err
	}
	return s.ingest(ctx, txs)
}

func (s *IngestionService) ingest(ctx context.Context, txs []core.Transaction) (IngestResult, error) {
	start := time.Now()

	inserted, err := s.store.InsertBatch(ctx, txs)
	if err != nil {
		return IngestResult{}, &StorageError{Op: log.OpIngest, Err: err}
	}

	res := IngestResult{
		Received: len(txs),
		Inserted: inserted,
		Skipped:  len(txs) - inserted,
		Users:    distinctUsers(txs),
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(res.Users...)
	}
	s.requestDetection(ctx, res.Users)

	s.logger.InfoContext(ctx, "Batch ingested",
		"received", res.Received,
		log.FieldInserted, res.Inserted,
		log.FieldSkipped, res.Skipped,
		log.FieldUsers, len(res.Users),
		log.FieldDuration, time.Since(start).Milliseconds())

	return res, nil
}

// requestDetection queues detection for each user. The batch is already
// stored, so publish failures are logged and not returned.
func (s *IngestionService) requestDetection(ctx context.Context, users []string) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not available, skipping detection requests")
		return
	}

	requestID := trace.GetRequestID(ctx)
	for _, userID := range users {
		if err := s.publisher.PublishDetectionRequest(ctx, userID, requestID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish detection request",
				log.FieldUserID, userID,
				log.FieldError, err)
		}
	}
}

func distinctUsers(txs []core.Transaction) []string {
	seen := make(map[string]struct{}, len(txs))
	var users []string
	for _, tx := range txs {
		if _, ok := seen[tx.UserID]; ok {
			continue
		}
		seen[tx.UserID] = struct{}{}
		users = append(users, tx.UserID)
	}
	sort.Strings(users)
	return users
}
