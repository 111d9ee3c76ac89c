package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	busyAttempts = 5
	busyDelay    = 25 * time.Millisecond
)

// withBusyRetry runs op again while SQLite reports the database as busy or
// locked. Any other error is returned at once.
func withBusyRetry(ctx context.Context, op func() error) error {
	return retry.Do(
		op,
		retry.Context(ctx),
		retry.RetryIf(isBusy),
		retry.Attempts(busyAttempts),
		retry.Delay(busyDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}
