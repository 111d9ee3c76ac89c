package sheets

import (
	"context"

	"recur/internal/core"
)

// Ports for inbound import adapters.
type (
	// TransactionSource reads raw transaction records from a tabular source.
	// Records are not validated; the ingestion rules apply to them.
	TransactionSource interface {
		ReadRecords(ctx context.Context) ([]core.Record, error)
	}
)

// Columns is the column order shared by every tabular source.
var Columns = []string{"name", "date", "amount", "trans_id", "user_id", "is_recurring"}
