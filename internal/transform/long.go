package transform

import (
	"strings"

	"github.com/gyeh/hospital-prices/internal/chargemaster"
)

// TransformLong reshapes one chunk of a long CSV (one row per code, payer
// and plan) into canonical records. Rows qualify when either code slot is
// typed CPT; a CPT code found only in the secondary slot is promoted.
func TransformLong(header []string, rows [][]string) []chargemaster.Record {
	f := newFrame(header, rows)
	f.stripChargePrefix()

	if f.index(colCode) < 0 {
		f.cols = append(f.cols, colCode)
		for i := range f.rows {
			f.rows[i] = append(f.rows[i], "")
		}
	}
	codeIdx := f.index(colCode)
	typeIdx, code2Idx, type2Idx := f.index(colCodeType), f.index(colCode2), f.index(colCode2Type)

	f.filterRows(func(r []string) bool {
		primary := isCPT(cell(r, typeIdx))
		secondary := isCPT(cell(r, type2Idx))
		if !primary && secondary {
			r[codeIdx] = cell(r, code2Idx)
			if typeIdx >= 0 {
				r[typeIdx] = "CPT"
			}
		}
		return primary || secondary
	})
	f.dropNamed(colCode2, colCode2Type)

	f.dropCols(func(i int, _ string) bool { return f.nullCount(i) == len(f.rows) })

	col := func(name string) int { return f.index(name) }
	var (
		descIdx   = col(colDescription)
		grossIdx  = col(colGross)
		cashIdx   = col(colDiscounted)
		minIdx    = col(colMin)
		maxIdx    = col(colMax)
		payerIdx  = col(colPayerName)
		planIdx   = col(colPlanName)
		dollarIdx = col(colNegDollar)
		pctIdx    = col(colNegPercentage)
		estIdx    = col(colEstimated)
	)
	codeIdx = col(colCode)

	out := make([]chargemaster.Record, 0, len(f.rows))
	for _, r := range f.rows {
		rec := chargemaster.Record{
			Description:     optString(cell(r, descIdx)),
			Code:            cell(r, codeIdx),
			Gross:           parseFloat(cell(r, grossIdx)),
			DiscountedCash:  parseFloat(cell(r, cashIdx)),
			Min:             parseFloat(cell(r, minIdx)),
			Max:             parseFloat(cell(r, maxIdx)),
			Payer:           NormalizeTextPtr(optString(cell(r, payerIdx))),
			Plan:            NormalizeTextPtr(optString(cell(r, planIdx))),
			EstimatedAmount: parseFloat(cell(r, estIdx)),
		}
		rec.NegotiatedPercentage = ImputePercentage(
			parseFloat(cell(r, pctIdx)),
			parseFloat(cell(r, dollarIdx)),
			rec.Max,
		)
		out = append(out, rec)
	}
	return out
}

func isCPT(codeType string) bool {
	return strings.EqualFold(strings.TrimSpace(codeType), "CPT")
}
