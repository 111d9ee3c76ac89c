package recurring

import (
	"math"

	"recur/internal/core"
)

// AmountsMatch reports whether a2 belongs to the same recurring series as a1.
// Amounts match when equal, when their floors are equal, or when a2 lies in
// the band a1 ± a1*tolerancePercent/100. The band is derived from a1 alone,
// so AmountsMatch(a, b) and AmountsMatch(b, a) can differ.
func AmountsMatch(a1, a2, tolerancePercent float64) bool {
	if a1 == a2 || math.Floor(a1) == math.Floor(a2) {
		return true
	}
	band := a1 * tolerancePercent / 100
	return a1-band <= a2 && a2 <= a1+band
}

// DatesMatch reports whether gap g2 falls within toleranceDays of gap g1.
func DatesMatch(g1, g2, toleranceDays int) bool {
	return g1-toleranceDays <= g2 && g2 <= g1+toleranceDays
}

// DayGaps returns the day distance between each pair of consecutive
// transactions. A group of n transactions yields n-1 gaps.
func DayGaps(group []core.Transaction) []int {
	if len(group) < 2 {
		return nil
	}
	gaps := make([]int, len(group)-1)
	for i := 0; i < len(group)-1; i++ {
		gaps[i] = group[i].Date.DaysSince(group[i+1].Date)
	}
	return gaps
}

// FindAmountMatches scans ordered pairs (i, j), i < j, of the group. When a
// pair matches both members are kept and the scan resumes with j as the new
// reference, so later members are compared against the latest match.
func (e *Engine) FindAmountMatches(group []core.Transaction) Set {
	set := newSet()
	for i := 0; i < len(group)-1; i++ {
		for j := i + 1; j < len(group); j++ {
			if AmountsMatch(group[i].Amount, group[j].Amount, e.cfg.AmountTolerancePercent) {
				set.add(i, group[i])
				set.add(j, group[j])
				i = j
			}
		}
	}
	return set
}

// FindDateMatches runs the same greedy scan over the group's day gaps. A match
// of gaps (i, j) keeps the transactions at positions i, j and j+1.
func (e *Engine) FindDateMatches(group []core.Transaction) Set {
	set := newSet()
	gaps := DayGaps(group)
	for i := 0; i < len(gaps)-1; i++ {
		for j := i + 1; j < len(gaps); j++ {
			if DatesMatch(gaps[i], gaps[j], e.cfg.DateToleranceDays) {
				set.add(i, group[i])
				set.add(j, group[j])
				set.add(j+1, group[j+1])
				i = j
			}
		}
	}
	return set
}
