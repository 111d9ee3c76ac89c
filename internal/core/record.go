package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Field error types reported back to API clients.
const (
	ErrTypeRequired   = "any.required"
	ErrTypeString     = "string.base"
	ErrTypeEmpty      = "string.empty"
	ErrTypeNumber     = "number.base"
	ErrTypeDate       = "date.base"
	ErrTypeBoolean    = "boolean.base"
	ErrTypeObject     = "object.base"
	ErrTypeDuplicated = "array.unique"
)

// FieldError describes why one field of an input record was rejected.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Record is an input transaction before validation. Nil fields were absent.
type Record struct {
	UserID      *string
	TransID     *string
	Name        *string
	Amount      *string
	Date        *string
	IsRecurring *bool
}

// BatchError rejects a whole batch. Errors is keyed by the zero-based
// position of the offending record.
type BatchError struct {
	Errors map[int][]FieldError
}

func (e *BatchError) Error() string {
	positions := e.Positions()
	parts := make([]string, 0, len(positions))
	for _, pos := range positions {
		msgs := make([]string, 0, len(e.Errors[pos]))
		for _, fe := range e.Errors[pos] {
			msgs = append(msgs, fe.Message)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", batchKey(pos), strings.Join(msgs, ", ")))
	}
	return "invalid transactions: " + strings.Join(parts, "; ")
}

// Positions returns the rejected positions in ascending order.
func (e *BatchError) Positions() []int {
	positions := make([]int, 0, len(e.Errors))
	for pos := range e.Errors {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions
}

// MarshalJSON renders the errors keyed "transaction<N>" with N counted from 1.
func (e *BatchError) MarshalJSON() ([]byte, error) {
	out := make(map[string][]FieldError, len(e.Errors))
	for pos, errs := range e.Errors {
		out[batchKey(pos)] = errs
	}
	return json.Marshal(out)
}

func batchKey(pos int) string {
	return fmt.Sprintf("transaction%d", pos+1)
}

// ParseBatch decodes and validates a JSON array of input records. A body
// that is not a non-empty array yields ErrEmptyBatch; any invalid record
// yields a *BatchError and no transactions.
func ParseBatch(data []byte) ([]Transaction, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, ErrEmptyBatch
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, ErrEmptyBatch
	}
	if len(raws) == 0 {
		return nil, ErrEmptyBatch
	}

	records := make([]Record, len(raws))
	decodeErrs := make(map[int][]FieldError)
	for i, raw := range raws {
		rec, errs := DecodeRecord(raw)
		records[i] = rec
		if len(errs) > 0 {
			decodeErrs[i] = errs
		}
	}

	txs, err := ValidateRecords(records)
	if len(decodeErrs) == 0 {
		return txs, err
	}
	merged := &BatchError{Errors: decodeErrs}
	if be, ok := err.(*BatchError); ok {
		for pos, errs := range be.Errors {
			merged.Errors[pos] = appendUnreported(merged.Errors[pos], errs)
		}
	}
	return nil, merged
}

// appendUnreported adds errs for fields that have no error in dst yet.
func appendUnreported(dst, errs []FieldError) []FieldError {
	reported := make(map[string]bool, len(dst))
	for _, fe := range dst {
		reported[fe.Field] = true
	}
	for _, fe := range errs {
		if !reported[fe.Field] {
			dst = append(dst, fe)
		}
	}
	return dst
}

// DecodeRecord reads one JSON object into a Record. Fields of the wrong JSON
// type are reported and left nil; unknown fields are ignored.
func DecodeRecord(raw json.RawMessage) (Record, []FieldError) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Record{}, []FieldError{{Field: "", Message: "transaction must be an object", Type: ErrTypeObject}}
	}

	var rec Record
	var errs []FieldError
	for _, name := range []string{"user_id", "trans_id", "name", "date"} {
		v, ok := fields[name]
		if !ok || isNull(v) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			typ := ErrTypeString
			if name == "date" {
				typ = ErrTypeDate
			}
			errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("%q must be a string", name), Type: typ})
			continue
		}
		switch name {
		case "user_id":
			rec.UserID = &s
		case "trans_id":
			rec.TransID = &s
		case "name":
			rec.Name = &s
		case "date":
			rec.Date = &s
		}
	}

	if v, ok := fields["amount"]; ok && !isNull(v) {
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			errs = append(errs, FieldError{Field: "amount", Message: `"amount" must be a number`, Type: ErrTypeNumber})
		} else {
			s := n.String()
			rec.Amount = &s
		}
	}

	if v, ok := fields["is_recurring"]; ok && !isNull(v) {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			errs = append(errs, FieldError{Field: "is_recurring", Message: `"is_recurring" must be a boolean`, Type: ErrTypeBoolean})
		} else {
			rec.IsRecurring = &b
		}
	}

	return rec, errs
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

// Validate checks every required field and converts the record. All field
// problems are reported, not just the first.
func (r Record) Validate() (Transaction, []FieldError) {
	var tx Transaction
	var errs []FieldError

	requireString := func(field string, v *string, dst *string) {
		switch {
		case v == nil:
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%q is required", field), Type: ErrTypeRequired})
		case strings.TrimSpace(*v) == "":
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%q is not allowed to be empty", field), Type: ErrTypeEmpty})
		default:
			*dst = *v
		}
	}
	requireString("user_id", r.UserID, &tx.UserID)
	requireString("trans_id", r.TransID, &tx.ID)
	requireString("name", r.Name, &tx.Name)

	if r.Amount == nil {
		errs = append(errs, FieldError{Field: "amount", Message: `"amount" is required`, Type: ErrTypeRequired})
	} else if amount, err := ParseAmount(*r.Amount); err != nil {
		errs = append(errs, FieldError{Field: "amount", Message: `"amount" must be a number`, Type: ErrTypeNumber})
	} else {
		tx.Amount = amount
	}

	if r.Date == nil {
		errs = append(errs, FieldError{Field: "date", Message: `"date" is required`, Type: ErrTypeRequired})
	} else if d, err := ParseDate(*r.Date); err != nil {
		errs = append(errs, FieldError{Field: "date", Message: `"date" must be a valid date`, Type: ErrTypeDate})
	} else {
		tx.Date = d
	}

	if r.IsRecurring != nil {
		tx.IsRecurring = *r.IsRecurring
	}

	if len(errs) > 0 {
		return Transaction{}, errs
	}
	return tx, nil
}

// ValidateRecords validates a batch as a unit: either every record converts,
// or a *BatchError lists the failures by position and nothing is returned.
// A trans_id repeated within the batch is rejected at its later positions.
func ValidateRecords(records []Record) ([]Transaction, error) {
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}

	txs := make([]Transaction, 0, len(records))
	failed := make(map[int][]FieldError)
	seen := make(map[string]int, len(records))
	for i, rec := range records {
		tx, errs := rec.Validate()
		if len(errs) > 0 {
			failed[i] = errs
			continue
		}
		if first, dup := seen[tx.ID]; dup {
			failed[i] = []FieldError{{
				Field:   "trans_id",
				Message: fmt.Sprintf(`"trans_id" duplicates %s`, batchKey(first)),
				Type:    ErrTypeDuplicated,
			}}
			continue
		}
		seen[tx.ID] = i
		txs = append(txs, tx)
	}

	if len(failed) > 0 {
		return nil, &BatchError{Errors: failed}
	}
	return txs, nil
}
