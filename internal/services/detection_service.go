package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"recur/internal/cache"
	"recur/internal/core"
	"recur/internal/log"
	"recur/internal/recurring"
)

// DefaultUpdateConcurrency bounds the flag updates in flight per detection.
const DefaultUpdateConcurrency = 8

// DetectionService runs recurring detection for a user and persists the
// recurring flag of every matched transaction.
type DetectionService struct {
	store       TransactionStore
	engine      *recurring.Engine
	concurrency int
	cache       cache.Cache[CachedDetection]
	logger      *log.Logger
}

// CachedDetection is a detection result together with the store version of
// the user it was computed from.
type CachedDetection struct {
	Result  recurring.Result
	Version int64
}

type DetectionOption func(*DetectionService)

// WithUpdateConcurrency sets how many flag updates run at once.
func WithUpdateConcurrency(n int) DetectionOption {
	return func(s *DetectionService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithResultCache serves repeated detections for a user from c while the
// user's store version is unchanged.
func WithResultCache(c cache.Cache[CachedDetection]) DetectionOption {
	return func(s *DetectionService) { s.cache = c }
}

func WithDetectionLogger(l *log.Logger) DetectionOption {
	return func(s *DetectionService) { s.logger = l.WithComponent(log.ComponentDetection) }
}

func NewDetectionService(store TransactionStore, engine *recurring.Engine, opts ...DetectionOption) *DetectionService {
	s := &DetectionService{
		store:       store,
		engine:      engine,
		concurrency: DefaultUpdateConcurrency,
		logger:      log.Default().WithComponent(log.ComponentDetection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Detect returns the recurring series of userID. The result is returned only
// after every matched transaction has been flagged; if any flag update fails
// the whole detection fails. A user without history gets an empty result.
func (s *DetectionService) Detect(ctx context.Context, userID string) (recurring.Result, error) {
	if strings.TrimSpace(userID) == "" {
		return recurring.Result{}, core.ErrEmptyUserID
	}

	// The version is read before the history so a result never claims a
	// newer version than the snapshot it was computed from.
	var version int64
	if s.cache != nil {
		v, err := s.store.UserVersion(ctx, userID)
		if err != nil {
			return recurring.Result{}, &StorageError{Op: log.OpVersion, Err: err}
		}
		version = v
		if hit, ok := s.cache.Get(userID); ok && hit.Version == version {
			s.logger.DebugContext(ctx, "Detection served from cache", log.FieldUserID, userID)
			return hit.Result, nil
		}
	}

	start := time.Now()
	txs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return recurring.Result{}, &StorageError{Op: log.OpList, Err: err}
	}
	if len(txs) == 0 {
		s.logger.InfoContext(ctx, "No transactions for user", log.FieldUserID, userID)
		return recurring.Result{Estimates: []recurring.Estimate{}}, nil
	}

	res, err := s.engine.Detect(txs)
	if err != nil {
		return recurring.Result{}, fmt.Errorf("detect recurring transactions for user %s: %w", userID, err)
	}

	if err := s.markRecurring(ctx, res.Matched); err != nil {
		return recurring.Result{}, err
	}
	flagMatched(&res)

	if s.cache != nil {
		s.cache.Set(userID, CachedDetection{Result: res, Version: version})
	}

	fields := log.NewFields().
		WithUser(userID).
		WithDetection(len(txs), len(res.Estimates), len(res.Matched)).
		WithDuration(start)
	s.logger.InfoContext(ctx, "Detection completed", fields.ToSlice()...)

	return res, nil
}

// markRecurring flags txs concurrently. The first failure cancels the
// remaining updates and is returned.
func (s *DetectionService) markRecurring(ctx context.Context, txs []core.Transaction) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, tx := range txs {
		if tx.IsRecurring {
			continue
		}
		transID := tx.ID
		g.Go(func() error {
			if err := s.store.MarkRecurring(gctx, transID); err != nil {
				return &StorageError{Op: log.OpMark, Err: err}
			}
			return nil
		})
	}

	return g.Wait()
}

// flagMatched mirrors the persisted flags in the returned result.
func flagMatched(res *recurring.Result) {
	for i := range res.Matched {
		res.Matched[i].IsRecurring = true
	}
	for i := range res.Estimates {
		for j := range res.Estimates[i].Transactions {
			res.Estimates[i].Transactions[j].IsRecurring = true
		}
	}
}

// Invalidate drops cached results for the given users.
func (s *DetectionService) Invalidate(userIDs ...string) {
	if s.cache != nil && len(userIDs) > 0 {
		s.cache.Delete(userIDs...)
	}
}
