package recurring

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"recur/internal/core"
)

// ErrInvariantViolation marks a state the engine must never reach. It is a
// defect, never a user error.
var ErrInvariantViolation = errors.New("recurring: invariant violation")

// Estimate projects the next occurrence of a recurring series.
type Estimate struct {
	NextAmount   float64            `json:"next_amt"`
	NextDate     core.Date          `json:"next_date"`
	Name         string             `json:"name"`
	UserID       string             `json:"user_id"`
	Transactions []core.Transaction `json:"transactions"`
}

// BuildEstimate projects the next transaction of a recurring set. The next
// amount is the amount of the most recent member; the next date is the most
// recent date plus the mean gap between members, rounded up to whole days.
func BuildEstimate(members []core.Transaction) (Estimate, error) {
	if len(members) < 2 {
		return Estimate{}, fmt.Errorf("%w: estimate needs at least 2 transactions, got %d", ErrInvariantViolation, len(members))
	}

	ordered := make([]core.Transaction, len(members))
	copy(ordered, members)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.After(ordered[j].Date.Time)
	})

	total := 0
	for _, gap := range DayGaps(ordered) {
		total += gap
	}
	meanGap := int(math.Ceil(float64(total) / float64(len(ordered)-1)))

	latest := ordered[0]
	return Estimate{
		NextAmount:   latest.Amount,
		NextDate:     latest.Date.AddDays(meanGap),
		Name:         latest.Name,
		UserID:       latest.UserID,
		Transactions: ordered,
	}, nil
}
