package sheets

import (
	"strconv"
	"strings"

	"recur/internal/core"
)

// RecordFromRow maps one row in Columns order to a Record. Empty cells
// become missing fields, so validation reports them as required.
func RecordFromRow(row []string) core.Record {
	var rec core.Record
	cell := func(i int) *string {
		if i >= len(row) {
			return nil
		}
		v := strings.TrimSpace(row[i])
		if v == "" {
			return nil
		}
		return &v
	}

	rec.Name = cell(0)
	rec.Date = cell(1)
	rec.Amount = cell(2)
	rec.TransID = cell(3)
	rec.UserID = cell(4)
	if v := cell(5); v != nil {
		if b, err := strconv.ParseBool(*v); err == nil {
			rec.IsRecurring = &b
		}
	}
	return rec
}

// RecordsFromRows skips the first skip rows and every blank row.
func RecordsFromRows(rows [][]string, skip int) []core.Record {
	if skip < 0 {
		skip = 0
	}
	var out []core.Record
	for i, row := range rows {
		if i < skip || isBlank(row) {
			continue
		}
		out = append(out, RecordFromRow(row))
	}
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
