package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of a transaction date.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar date at UTC midnight.
	Date struct {
		time.Time
	}

	// Transaction is a single entry of a user's history. Transactions are
	// identified by ID across every user.
	Transaction struct {
		ID          string  `json:"trans_id"`
		UserID      string  `json:"user_id"`
		Name        string  `json:"name"`
		Amount      float64 `json:"amount"`
		Date        Date    `json:"date"`
		IsRecurring bool    `json:"is_recurring"`
	}
)

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrEmptyUserID = errors.New("empty user id")
	ErrEmptyBatch  = errors.New("request body must be a non-empty array of transactions")
)

var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts a plain ISO-8601 date or a full timestamp and truncates
// it to the calendar date it falls on in UTC.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return NewDate(t.Year(), int(t.Month()), t.Day()), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// AddDays returns the date n calendar days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysSince returns the whole number of days from other to d.
func (d Date) DaysSince(other Date) int {
	return int(math.Round(d.Sub(other.Time).Hours() / 24))
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
