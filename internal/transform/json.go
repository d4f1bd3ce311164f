package transform

import (
	"encoding/json"
	"io"

	"github.com/go-faster/errors"
	simdjson "github.com/minio/simdjson-go"

	"github.com/gyeh/hospital-prices/internal/chargemaster"
)

// AmountSource selects which payer field becomes EstimatedAmount for JSON
// inputs.
type AmountSource string

const (
	// AmountFromNegotiatedDollar stores standard_charge_dollar as the
	// estimated amount. Downstream aggregates average estimated_amount, and
	// most JSON files carry only the dollar figure.
	AmountFromNegotiatedDollar AmountSource = "negotiated_dollar"
	// AmountFromEstimated stores the payer's own estimated_amount.
	AmountFromEstimated AmountSource = "estimated_amount"
)

// JSONOptions controls the decisions TransformJSON makes once per file.
type JSONOptions struct {
	Policy       ValidationPolicy
	AmountSource AmountSource
}

var useSimd = simdjson.SupportedCPU()

type chargeInformation struct {
	Description     FlexibleString    `json:"description"`
	CodeInformation []codeInformation `json:"code_information"`
	StandardCharges []standardCharge  `json:"standard_charges"`
}

type codeInformation struct {
	Code FlexibleString `json:"code"`
	Type FlexibleString `json:"type"`
}

type standardCharge struct {
	Minimum           FlexibleFloat      `json:"minimum"`
	Maximum           FlexibleFloat      `json:"maximum"`
	GrossCharge       FlexibleFloat      `json:"gross_charge"`
	DiscountedCash    FlexibleFloat      `json:"discounted_cash"`
	PayersInformation []payerInformation `json:"payers_information"`
}

type payerInformation struct {
	PayerName                FlexibleString `json:"payer_name"`
	PlanName                 FlexibleString `json:"plan_name"`
	StandardChargePercentage FlexibleFloat  `json:"standard_charge_percentage"`
	StandardChargeDollar     FlexibleFloat  `json:"standard_charge_dollar"`
	EstimatedAmount          FlexibleFloat  `json:"estimated_amount"`
}

// jsonRow is one flattened (description, code, charge, payer) combination.
type jsonRow struct {
	description, code, payer, plan *string
	gross, cash, min, max          *float64
	pct, dollar, estimated         *float64
}

// TransformJSON streams a CMS JSON chargemaster and returns canonical
// records. Each standard_charge_information entry is expanded to the cross
// product of its codes, charge tiers and payers, filtered to CPT codes, then
// validated once under opts.Policy.
func TransformJSON(r io.Reader, opts JSONOptions) ([]chargemaster.Record, *ValidationReport, error) {
	rows, err := flattenJSON(r)
	if err != nil {
		return nil, nil, err
	}

	valid, report, err := validateRows(rows, opts.Policy)
	if err != nil {
		return nil, report, err
	}

	out := make([]chargemaster.Record, 0, len(valid))
	for _, row := range valid {
		rec := chargemaster.Record{
			Description:    row.description,
			Code:           *row.code,
			Gross:          row.gross,
			DiscountedCash: row.cash,
			Min:            row.min,
			Max:            row.max,
			Payer:          row.payer,
			Plan:           row.plan,
		}
		if opts.AmountSource == AmountFromEstimated {
			rec.EstimatedAmount = row.estimated
		} else {
			rec.EstimatedAmount = row.dollar
		}
		rec.NegotiatedPercentage = ImputePercentage(row.pct, row.dollar, row.max)
		out = append(out, rec)
	}
	return out, report, nil
}

func flattenJSON(r io.Reader) ([]jsonRow, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, errors.Wrap(err, "document")
	}

	var (
		rows []jsonRow
		pj   *simdjson.ParsedJson
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "read key")
		}
		key, _ := tok.(string)
		if key != "standard_charge_information" {
			if err := skipValue(dec); err != nil {
				return nil, errors.Wrapf(err, "skip %s", key)
			}
			continue
		}

		if err := expectDelim(dec, '['); err != nil {
			return nil, errors.Wrap(err, "standard_charge_information")
		}
		for n := 0; dec.More(); n++ {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, errors.Wrapf(err, "decode standard_charge_information[%d]", n)
			}
			if useSimd {
				rows, pj, err = flattenChargeSimd(raw, pj, rows)
			} else {
				rows, err = flattenCharge(raw, rows)
			}
			if err != nil {
				return nil, errors.Wrapf(err, "standard_charge_information[%d]", n)
			}
		}
		if _, err := dec.Token(); err != nil {
			return nil, errors.Wrap(err, "close standard_charge_information")
		}
	}
	return rows, nil
}

func flattenCharge(raw json.RawMessage, rows []jsonRow) ([]jsonRow, error) {
	var ci chargeInformation
	if err := json.Unmarshal(raw, &ci); err != nil {
		return rows, err
	}

	desc := NormalizeTextPtr(ci.Description.Value)
	for _, code := range ci.CodeInformation {
		if code.Type.Value == nil || !isCPT(*code.Type.Value) {
			continue
		}
		for _, sc := range ci.StandardCharges {
			for _, p := range sc.PayersInformation {
				rows = append(rows, jsonRow{
					description: desc,
					code:        code.Code.Value,
					payer:       NormalizeTextPtr(p.PayerName.Value),
					plan:        NormalizeTextPtr(p.PlanName.Value),
					gross:       sc.GrossCharge.Value,
					cash:        sc.DiscountedCash.Value,
					min:         sc.Minimum.Value,
					max:         sc.Maximum.Value,
					pct:         p.StandardChargePercentage.Value,
					dollar:      p.StandardChargeDollar.Value,
					estimated:   p.EstimatedAmount.Value,
				})
			}
		}
	}
	return rows, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// skipValue consumes the next JSON value, however deeply nested.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	for dec.More() {
		if d == '{' {
			if _, err := dec.Token(); err != nil {
				return err
			}
		}
		if err := skipValue(dec); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
