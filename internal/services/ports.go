package services

import (
	"context"
	"fmt"

	"recur/internal/core"
)

// TransactionStore is the persistence collaborator shared by the services.
type TransactionStore interface {
	// ListByUser returns the user's transactions, most recent first.
	ListByUser(ctx context.Context, userID string) ([]core.Transaction, error)
	// InsertBatch stores txs atomically and returns how many were new.
	InsertBatch(ctx context.Context, txs []core.Transaction) (int, error)
	// MarkRecurring flags one transaction. Repeating it is harmless.
	MarkRecurring(ctx context.Context, transID string) error
	// UserVersion returns a number that grows whenever a transaction is
	// stored for userID, whichever process stored it. It is 0 for a user
	// without transactions.
	UserVersion(ctx context.Context, userID string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// DetectionPublisher queues asynchronous detection for a user.
type DetectionPublisher interface {
	PublishDetectionRequest(ctx context.Context, userID, requestID string) error
}

// StorageError reports that the persistence collaborator failed. The whole
// operation it belongs to has failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
