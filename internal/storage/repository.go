package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"recur/internal/core"

	_ "modernc.org/sqlite"
)

const (
	insertTransactionSQL = `INSERT INTO transactions (trans_id, user_id, name, amount, date, is_recurring)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(trans_id) DO NOTHING`

	listByUserSQL = `SELECT trans_id, user_id, name, amount, date, is_recurring
FROM transactions
WHERE user_id = ?
ORDER BY date DESC, seq ASC`

	userVersionSQL = `SELECT COALESCE(MAX(seq), 0) FROM transactions WHERE user_id = ?`

	markRecurringSQL = `UPDATE transactions
SET is_recurring = 1, updated_at = CURRENT_TIMESTAMP
WHERE trans_id = ? AND is_recurring = 0`
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before opening the main pool so the schema is in place.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("SQLite repository ready", "path", dbPath)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListByUser returns the user's transactions, most recent first. Rows on the
// same date come back in insertion order.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, listByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		var (
			tx        core.Transaction
			date      string
			recurring int64
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Name, &tx.Amount, &date, &recurring); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		tx.IsRecurring = recurring != 0
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return txs, nil
}

// InsertBatch stores txs in a single database transaction. Transactions whose
// ID is already stored are skipped; the number of new rows is returned.
func (r *SQLiteRepository) InsertBatch(ctx context.Context, txs []core.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	var inserted int
	err := withBusyRetry(ctx, func() error {
		n, err := r.insertBatch(ctx, txs)
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Transactions saved to SQLite",
		"received", len(txs),
		"inserted", inserted)

	return inserted, nil
}

func (r *SQLiteRepository) insertBatch(ctx context.Context, txs []core.Transaction) (int, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, insertTransactionSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, tx := range txs {
		res, err := stmt.ExecContext(ctx, tx.ID, tx.UserID, tx.Name, tx.Amount, tx.Date.String(), boolToInt(tx.IsRecurring))
		if err != nil {
			return 0, fmt.Errorf("insert transaction %s: %w", tx.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, nil
}

// MarkRecurring sets the recurring flag of one transaction. Marking an
// already flagged or unknown transaction is not an error.
func (r *SQLiteRepository) MarkRecurring(ctx context.Context, transID string) error {
	return withBusyRetry(ctx, func() error {
		if _, err := r.db.ExecContext(ctx, markRecurringSQL, transID); err != nil {
			return fmt.Errorf("mark transaction %s recurring: %w", transID, err)
		}
		return nil
	})
}

// UserVersion returns the highest insertion sequence among the user's rows.
func (r *SQLiteRepository) UserVersion(ctx context.Context, userID string) (int64, error) {
	var version int64
	if err := r.db.QueryRowContext(ctx, userVersionSQL, userID).Scan(&version); err != nil {
		return 0, fmt.Errorf("query version of user %s: %w", userID, err)
	}
	return version, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
