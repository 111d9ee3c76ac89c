// Package postgres stores transactions in PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"recur/internal/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds the PostgreSQL connection settings.
type Config struct {
	URL string
	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Repository stores transactions in a PostgreSQL database.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to PostgreSQL, applies pending migrations and returns a
// ready repository.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := RunMigrations(cfg.URL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database)

	return &Repository{pool: pool, logger: logger}, nil
}

// RunMigrations applies the embedded migrations to the database at url.
func RunMigrations(url string) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, migrateURL(url))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres:// URL to the scheme of the pgx v5 driver.
func migrateURL(url string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(url, scheme) {
			return "pgx5://" + strings.TrimPrefix(url, scheme)
		}
	}
	return url
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// ListByUser returns the user's transactions, most recent first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT trans_id, user_id, name, amount, date, is_recurring
		FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	txs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Transaction, error) {
		var (
			tx   core.Transaction
			date time.Time
		)
		if err := row.Scan(&tx.ID, &tx.UserID, &tx.Name, &tx.Amount, &date, &tx.IsRecurring); err != nil {
			return core.Transaction{}, err
		}
		tx.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
		return tx, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	return txs, nil
}

// InsertBatch writes txs in one database transaction, skipping IDs that are
// already stored, and returns the number of new rows.
func (r *Repository) InsertBatch(ctx context.Context, txs []core.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbTx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, tx := range txs {
		batch.Queue(`
			INSERT INTO transactions (trans_id, user_id, name, amount, date, is_recurring)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (trans_id) DO NOTHING
		`, tx.ID, tx.UserID, tx.Name, tx.Amount, tx.Date.Time, tx.IsRecurring)
	}

	results := dbTx.SendBatch(ctx, batch)
	inserted := 0
	for i := range txs {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("inserting transaction %s: %w", txs[i].ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("closing batch: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	r.logger.InfoContext(ctx, "Transactions saved to PostgreSQL",
		"received", len(txs),
		"inserted", inserted)

	return inserted, nil
}

// MarkRecurring sets the recurring flag of one transaction. It is a no-op for
// flagged or unknown transactions.
func (r *Repository) MarkRecurring(ctx context.Context, transID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET is_recurring = TRUE, updated_at = NOW()
		WHERE trans_id = $1 AND NOT is_recurring
	`, transID)
	if err != nil {
		return fmt.Errorf("mark transaction %s recurring: %w", transID, err)
	}
	return nil
}

// UserVersion returns the highest insertion sequence among the user's rows.
func (r *Repository) UserVersion(ctx context.Context, userID string) (int64, error) {
	var version int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq), 0)::BIGINT FROM transactions WHERE user_id = $1
	`, userID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("query version of user %s: %w", userID, err)
	}
	return version, nil
}

// Close closes the database connection pool.
func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
		r.logger.Info("closed PostgreSQL connection pool")
	}
	return nil
}
