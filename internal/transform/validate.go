package transform

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// ValidationPolicy decides what happens to JSON rows missing required
// fields.
type ValidationPolicy string

const (
	PolicyDrop ValidationPolicy = "drop"
	PolicyFail ValidationPolicy = "fail"
)

// ErrNoValidRows is returned when validation drops every row of a
// non-empty file.
var ErrNoValidRows = errors.New("no rows passed validation")

// ValidationReport summarizes a validation pass.
type ValidationReport struct {
	Rows           int
	Dropped        int
	MissingByField map[string]int
}

// ValidationError reports the first invalid row under PolicyFail.
type ValidationError struct {
	Row     int
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d missing required fields: %s", e.Row, strings.Join(e.Missing, ", "))
}

type requiredField struct {
	name    string
	present func(*jsonRow) bool
}

var requiredFields = []requiredField{
	{"description", func(r *jsonRow) bool { return r.description != nil }},
	{"code", func(r *jsonRow) bool { return r.code != nil }},
	{"gross", func(r *jsonRow) bool { return r.gross != nil }},
	{"discounted_cash", func(r *jsonRow) bool { return r.cash != nil }},
	{"min", func(r *jsonRow) bool { return r.min != nil }},
	{"max", func(r *jsonRow) bool { return r.max != nil }},
	{"payer", func(r *jsonRow) bool { return r.payer != nil }},
	{"plan", func(r *jsonRow) bool { return r.plan != nil }},
	{"negotiated_dollar", func(r *jsonRow) bool { return r.dollar != nil }},
}

func missingFields(r *jsonRow) []string {
	var missing []string
	for _, f := range requiredFields {
		if !f.present(r) {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// validateRows checks every row once. Under PolicyDrop invalid rows are
// removed; under PolicyFail the first one aborts. Dropping every row of a
// non-empty input is an error either way.
func validateRows(rows []jsonRow, policy ValidationPolicy) ([]jsonRow, *ValidationReport, error) {
	report := &ValidationReport{Rows: len(rows), MissingByField: map[string]int{}}

	valid := rows[:0:0]
	for i := range rows {
		missing := missingFields(&rows[i])
		if len(missing) == 0 {
			valid = append(valid, rows[i])
			continue
		}
		if policy == PolicyFail {
			return nil, report, &ValidationError{Row: i, Missing: missing}
		}
		report.Dropped++
		for _, m := range missing {
			report.MissingByField[m]++
		}
	}

	if len(rows) > 0 && len(valid) == 0 {
		return nil, report, errors.Wrapf(ErrNoValidRows, "%d rows dropped", report.Dropped)
	}
	return valid, report, nil
}
