// Package recurring detects recurring transactions in a user's history and
// estimates the next occurrence of each recurring series.
//
// Transactions are grouped by counterparty, matched within each group by
// amount similarity and by periodic date gaps, and each non-empty match set
// becomes an Estimate. The package is pure: no I/O and no shared state.
package recurring

import (
	"fmt"

	"recur/internal/core"
)

// MinGroupSize is the smallest group that can hold a recurring series.
const MinGroupSize = 3

// Config holds the matching tolerances.
type Config struct {
	AmountTolerancePercent float64
	DateToleranceDays      int
}

// DefaultConfig returns the tolerances used when none are configured.
func DefaultConfig() Config {
	return Config{
		AmountTolerancePercent: 10,
		DateToleranceDays:      3,
	}
}

func (c Config) Validate() error {
	if c.AmountTolerancePercent < 0 {
		return fmt.Errorf("amount tolerance %v: must not be negative", c.AmountTolerancePercent)
	}
	if c.DateToleranceDays < 0 {
		return fmt.Errorf("date tolerance %d: must not be negative", c.DateToleranceDays)
	}
	return nil
}

// Engine runs detection with a fixed Config. It is safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Result is the outcome of a detection run.
type Result struct {
	// Estimates holds one entry per recurring group, in key order.
	Estimates []Estimate
	// Matched lists every transaction that belongs to a recurring set.
	Matched []core.Transaction
}

// MatchGroup returns the union of the amount and date matches of a group.
// Groups smaller than MinGroupSize yield an empty set.
func (e *Engine) MatchGroup(group []core.Transaction) Set {
	if len(group) < MinGroupSize {
		return newSet()
	}
	return Union(e.FindAmountMatches(group), e.FindDateMatches(group))
}

// Detect runs detection over one user's transactions, most recent first.
func (e *Engine) Detect(txs []core.Transaction) (Result, error) {
	res := Result{Estimates: []Estimate{}}

	groups := Group(txs)
	for _, key := range groups.Keys() {
		set := e.MatchGroup(groups[key])
		if set.Len() == 0 {
			continue
		}

		members := set.Transactions()
		est, err := BuildEstimate(members)
		if err != nil {
			return Result{}, fmt.Errorf("group %q: %w", key, err)
		}
		res.Estimates = append(res.Estimates, est)
		res.Matched = append(res.Matched, members...)
	}

	return res, nil
}
