package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"recur/internal/core"
)

type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]core.Transaction
	order     []string
	listErr   error
	insertErr error
	markErr   map[string]error
	marks     []string
	lists     int

	// afterList runs once a ListByUser snapshot is taken, before it is
	// returned.
	afterList func()
}

func newFakeStore(txs ...core.Transaction) *fakeStore {
	s := &fakeStore{rows: map[string]core.Transaction{}, markErr: map[string]error{}}
	for _, tx := range txs {
		s.rows[tx.ID] = tx
		s.order = append(s.order, tx.ID)
	}
	return s
}

func (s *fakeStore) ListByUser(_ context.Context, userID string) ([]core.Transaction, error) {
	out, err := s.snapshot(userID)
	if err != nil {
		return nil, err
	}
	if s.afterList != nil {
		s.afterList()
	}
	return out, nil
}

func (s *fakeStore) snapshot(userID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []core.Transaction
	for _, id := range s.order {
		if tx := s.rows[id]; tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date.Time) })
	return out, nil
}

// UserVersion is the position of the user's latest row in insertion order.
func (s *fakeStore) UserVersion(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var version int64
	for i, id := range s.order {
		if s.rows[id].UserID == userID {
			version = int64(i + 1)
		}
	}
	return version, nil
}

func (s *fakeStore) InsertBatch(_ context.Context, txs []core.Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	n := 0
	for _, tx := range txs {
		if _, ok := s.rows[tx.ID]; ok {
			continue
		}
		s.rows[tx.ID] = tx
		s.order = append(s.order, tx.ID)
		n++
	}
	return n, nil
}

func (s *fakeStore) MarkRecurring(_ context.Context, transID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.markErr[transID]; err != nil {
		return err
	}
	s.marks = append(s.marks, transID)
	if tx, ok := s.rows[transID]; ok {
		tx.IsRecurring = true
		s.rows[transID] = tx
	}
	return nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

func (s *fakeStore) markCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.marks)
}

type fakePublisher struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (p *fakePublisher) PublishDetectionRequest(_ context.Context, userID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, userID)
	return p.err
}

type fakeInvalidator struct {
	users []string
}

func (f *fakeInvalidator) Invalidate(userIDs ...string) {
	f.users = append(f.users, userIDs...)
}

var errBoom = errors.New("boom")
