package transform

import (
	"regexp"
	"strings"
)

// chargePrefix is the column-name prefix CMS templates put on every price
// column.
var chargePrefix = regexp.MustCompile(`(?i)standard_charge\|`)

// frame is one chunk of CSV rows addressed by column name. Empty cells are
// nulls. Every row has exactly len(cols) cells.
type frame struct {
	cols []string
	rows [][]string
}

func newFrame(header []string, rows [][]string) *frame {
	f := &frame{cols: append([]string(nil), header...), rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		row := make([]string, len(header))
		copy(row, r)
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
		f.rows = append(f.rows, row)
	}
	return f
}

// index returns the position of the first column named col, or -1.
func (f *frame) index(col string) int {
	for i, c := range f.cols {
		if c == col {
			return i
		}
	}
	return -1
}

// cell returns the value of column i in row, or "" when i is -1.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func (f *frame) filterRows(keep func(row []string) bool) {
	kept := f.rows[:0]
	for _, r := range f.rows {
		if keep(r) {
			kept = append(kept, r)
		}
	}
	f.rows = kept
}

// dropCols removes every column for which drop returns true.
func (f *frame) dropCols(drop func(i int, name string) bool) {
	keep := make([]int, 0, len(f.cols))
	for i, c := range f.cols {
		if !drop(i, c) {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(f.cols) {
		return
	}

	cols := make([]string, len(keep))
	for j, i := range keep {
		cols[j] = f.cols[i]
	}
	for n, r := range f.rows {
		row := make([]string, len(keep))
		for j, i := range keep {
			row[j] = r[i]
		}
		f.rows[n] = row
	}
	f.cols = cols
}

func (f *frame) dropNamed(names ...string) {
	f.dropCols(func(_ int, name string) bool {
		for _, n := range names {
			if name == n {
				return true
			}
		}
		return false
	})
}

func (f *frame) nullCount(i int) int {
	n := 0
	for _, r := range f.rows {
		if r[i] == "" {
			n++
		}
	}
	return n
}

// stripChargePrefix removes the charge prefix from every column name, then
// trims surrounding underscores.
func (f *frame) stripChargePrefix() {
	for i, c := range f.cols {
		f.cols[i] = strings.Trim(chargePrefix.ReplaceAllString(c, ""), "_")
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
