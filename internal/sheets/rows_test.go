package sheets

import (
	"testing"
)

func TestRecordsFromRows(t *testing.T) {
	rows := [][]string{
		{"Recurring transactions"},
		{},
		{"name", "date", "amount", "trans_id", "user_id", "is_recurring"},
		{"Netflix 0318", "2018-03-02", "9,99", "t1", "1", "FALSE"},
		{"", "", ""},
		{"Gym", "2018-03-05", "40", "t2", "1"},
		{"Broken", "", "12", "t3"},
	}

	recs := RecordsFromRows(rows, 3)
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}

	first := recs[0]
	if *first.Name != "Netflix 0318" || *first.Amount != "9,99" || *first.TransID != "t1" || *first.UserID != "1" {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if first.IsRecurring == nil || *first.IsRecurring {
		t.Fatalf("is_recurring should be parsed as false")
	}

	if recs[1].IsRecurring != nil {
		t.Fatalf("missing is_recurring cell should stay unset")
	}

	broken := recs[2]
	if broken.Date != nil || broken.UserID != nil {
		t.Fatalf("empty and missing cells should be nil: %+v", broken)
	}
	if _, errs := broken.Validate(); len(errs) != 2 {
		t.Fatalf("expected date and user_id errors, got %v", errs)
	}
}

func TestRecordsFromRowsNegativeSkip(t *testing.T) {
	recs := RecordsFromRows([][]string{{"a", "2018-01-01", "1", "x", "u"}}, -1)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
}
