// Package memory keeps transactions in process memory. It backs tests and
// local runs that need no database.
package memory

import (
	"context"
	"sort"
	"sync"

	"recur/internal/core"
)

type row struct {
	seq int
	tx  core.Transaction
}

type Store struct {
	mu       sync.Mutex
	seq      int
	rows     map[string]*row
	versions map[string]int
}

func New() *Store {
	return &Store{rows: make(map[string]*row), versions: make(map[string]int)}
}

// ListByUser returns the user's transactions, most recent first and in
// insertion order on equal dates.
func (s *Store) ListByUser(_ context.Context, userID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []*row
	for _, r := range s.rows {
		if r.tx.UserID == userID {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].tx.Date.Equal(rows[j].tx.Date.Time) {
			return rows[i].tx.Date.After(rows[j].tx.Date.Time)
		}
		return rows[i].seq < rows[j].seq
	})

	out := make([]core.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.tx
	}
	return out, nil
}

// InsertBatch stores every transaction whose ID is new and returns how many
// were stored.
func (s *Store) InsertBatch(_ context.Context, txs []core.Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, tx := range txs {
		if _, exists := s.rows[tx.ID]; exists {
			continue
		}
		s.seq++
		s.rows[tx.ID] = &row{seq: s.seq, tx: tx}
		s.versions[tx.UserID] = s.seq
		inserted++
	}
	return inserted, nil
}

func (s *Store) MarkRecurring(_ context.Context, transID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[transID]; ok {
		r.tx.IsRecurring = true
	}
	return nil
}

// UserVersion returns the sequence number of the user's latest insert.
func (s *Store) UserVersion(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(s.versions[userID]), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
