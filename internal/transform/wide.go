package transform

import (
	"sort"
	"strings"
	"unicode"

	"github.com/gyeh/hospital-prices/internal/chargemaster"
)

// Column names shared by the CSV layouts, after prefix stripping.
const (
	colCode          = "code|1"
	colCodeType      = "code|1|type"
	colCode2         = "code|2"
	colCode2Type     = "code|2|type"
	colModifiers     = "modifiers"
	colDescription   = "description"
	colGross         = "gross"
	colDiscounted    = "discounted_cash"
	colMin           = "min"
	colMax           = "max"
	colPayerName     = "payer_name"
	colPlanName      = "plan_name"
	colNegDollar     = "negotiated_dollar"
	colNegPercentage = "negotiated_percentage"
	colEstimated     = "estimated_amount"
	additionalPrefix = "additional_"
)

// wideBaseCols always identify a row in the wide layout, wherever they sit.
var wideBaseCols = map[string]bool{
	colDescription: true,
	colCode:        true,
	colGross:       true,
	colDiscounted:  true,
	colMin:         true,
	colMax:         true,
}

// TransformWide reshapes one chunk of a wide CSV (one row per code, one
// column per payer/plan/value-type) into canonical records, one per
// (code, payer, plan).
func TransformWide(header []string, rows [][]string) []chargemaster.Record {
	f := newFrame(header, rows)

	codeIdx, typeIdx := f.index(colCode), f.index(colCodeType)
	if codeIdx < 0 || typeIdx < 0 {
		return nil
	}
	f.filterRows(func(r []string) bool { return r[typeIdx] == "CPT" })
	dedupeByCode(f, codeIdx)

	f.dropNamed(colCode2, colCode2Type, colModifiers)
	f.stripChargePrefix()
	dropUninformative(f)

	ids, charges := splitWideColumns(f)
	return pivotWide(f, ids, charges)
}

// dedupeByCode orders rows by code and keeps the first row seen for each.
func dedupeByCode(f *frame, codeIdx int) {
	sort.SliceStable(f.rows, func(i, j int) bool {
		return f.rows[i][codeIdx] < f.rows[j][codeIdx]
	})
	seen := make(map[string]struct{}, len(f.rows))
	f.filterRows(func(r []string) bool {
		if _, ok := seen[r[codeIdx]]; ok {
			return false
		}
		seen[r[codeIdx]] = struct{}{}
		return true
	})
}

// dropUninformative removes columns that are null for every code, text
// annotation columns with no digit anywhere, and "additional_*" notes.
func dropUninformative(f *frame) {
	codeIdx := f.index(colCode)
	distinct := make(map[string]struct{}, len(f.rows))
	for _, r := range f.rows {
		if c := cell(r, codeIdx); c != "" {
			distinct[c] = struct{}{}
		}
	}

	f.dropCols(func(i int, name string) bool {
		if strings.HasPrefix(name, additionalPrefix) {
			return true
		}
		if f.nullCount(i) == len(distinct) {
			return true
		}
		return name != colDescription && name != colCode && isDigitFree(f, i)
	})
}

func isDigitFree(f *frame, i int) bool {
	if len(f.rows) == 0 {
		return false
	}
	for _, r := range f.rows {
		if r[i] == "" || strings.IndexFunc(r[i], unicode.IsDigit) >= 0 {
			return false
		}
	}
	return true
}

type chargeCol struct {
	idx int
	key ChargeKey
}

// splitWideColumns picks the identifying columns (the first four, the last
// two, and the base columns) and parses every other column as a charge key.
// A column carrying a value-type token is always a charge column.
// Unrecognized keys are dropped.
func splitWideColumns(f *frame) (ids map[string]int, charges []chargeCol) {
	n := len(f.cols)
	ids = make(map[string]int)
	for i, name := range f.cols {
		_, tokenized := matchValueType(name)
		positional := i < 4 || i >= n-2
		if !tokenized && (positional || wideBaseCols[name]) {
			if _, dup := ids[name]; !dup {
				ids[name] = i
			}
			continue
		}
		if key, ok := ParseChargeKey(name); ok && key.Plan != "" {
			charges = append(charges, chargeCol{idx: i, key: key})
		}
	}
	return ids, charges
}

type pivotCell struct {
	payer, plan string
	pct         *float64
	dollar      *float64
	estimated   *float64
}

// pivotWide folds each row's charge columns into one record per payer/plan.
// The first non-null value in column order wins.
func pivotWide(f *frame, ids map[string]int, charges []chargeCol) []chargemaster.Record {
	col := func(name string) int {
		if i, ok := ids[name]; ok {
			return i
		}
		return -1
	}
	codeIdx, descIdx := col(colCode), col(colDescription)
	grossIdx, cashIdx, minIdx, maxIdx := col(colGross), col(colDiscounted), col(colMin), col(colMax)

	var out []chargemaster.Record
	for _, r := range f.rows {
		var cells []*pivotCell
		byPair := make(map[[2]string]*pivotCell)

		for _, c := range charges {
			v := parseFloat(r[c.idx])
			if v == nil {
				continue
			}
			pair := [2]string{c.key.Payer, c.key.Plan}
			pc, ok := byPair[pair]
			if !ok {
				pc = &pivotCell{payer: c.key.Payer, plan: c.key.Plan}
				byPair[pair] = pc
				cells = append(cells, pc)
			}
			switch c.key.ValueType {
			case NegotiatedPercentage:
				if pc.pct == nil {
					pc.pct = v
				}
			case NegotiatedDollar:
				if pc.dollar == nil {
					pc.dollar = v
				}
			case EstimatedAmount:
				if pc.estimated == nil {
					pc.estimated = v
				}
			}
		}

		for _, pc := range cells {
			rec := chargemaster.Record{
				Description:     optString(cell(r, descIdx)),
				Code:            cell(r, codeIdx),
				Gross:           parseFloat(cell(r, grossIdx)),
				DiscountedCash:  parseFloat(cell(r, cashIdx)),
				Min:             parseFloat(cell(r, minIdx)),
				Max:             parseFloat(cell(r, maxIdx)),
				Payer:           NormalizeTextPtr(&pc.payer),
				Plan:            NormalizeTextPtr(&pc.plan),
				EstimatedAmount: pc.estimated,
			}
			// Negotiated dollars are not carried in the wide layout.
			rec.NegotiatedPercentage = ImputePercentage(pc.pct, rec.EstimatedAmount, rec.Max)
			out = append(out, rec)
		}
	}
	return DedupeRecords(out)
}
