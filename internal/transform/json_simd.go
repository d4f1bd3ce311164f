package transform

import (
	"encoding/json"

	simdjson "github.com/minio/simdjson-go"
)

// flattenChargeSimd is flattenCharge on simdjson. pj is reused across calls
// to avoid reallocating the tape.
func flattenChargeSimd(raw json.RawMessage, pj *simdjson.ParsedJson, rows []jsonRow) ([]jsonRow, *simdjson.ParsedJson, error) {
	pj, err := simdjson.Parse(raw, pj)
	if err != nil {
		return rows, pj, err
	}

	err = pj.ForEach(func(i simdjson.Iter) error {
		desc := NormalizeTextPtr(simdString(i, "description"))

		type code struct{ value *string }
		var codes []code
		forEachElem(i, "code_information", func(ci simdjson.Iter) {
			t := simdString(ci, "type")
			if t == nil || !isCPT(*t) {
				return
			}
			codes = append(codes, code{value: simdString(ci, "code")})
		})
		if len(codes) == 0 {
			return nil
		}

		for _, c := range codes {
			forEachElem(i, "standard_charges", func(sc simdjson.Iter) {
				gross := simdFloat(sc, "gross_charge")
				cash := simdFloat(sc, "discounted_cash")
				min := simdFloat(sc, "minimum")
				max := simdFloat(sc, "maximum")
				forEachElem(sc, "payers_information", func(p simdjson.Iter) {
					rows = append(rows, jsonRow{
						description: desc,
						code:        c.value,
						payer:       NormalizeTextPtr(simdString(p, "payer_name")),
						plan:        NormalizeTextPtr(simdString(p, "plan_name")),
						gross:       gross,
						cash:        cash,
						min:         min,
						max:         max,
						pct:         simdFloat(p, "standard_charge_percentage"),
						dollar:      simdFloat(p, "standard_charge_dollar"),
						estimated:   simdFloat(p, "estimated_amount"),
					})
				})
			})
		}
		return nil
	})
	return rows, pj, err
}

func forEachElem(i simdjson.Iter, key string, fn func(simdjson.Iter)) {
	elem, err := i.FindElement(nil, key)
	if err != nil || elem.Type != simdjson.TypeArray {
		return
	}
	arr, err := elem.Iter.Array(nil)
	if err != nil {
		return
	}
	arr.ForEach(fn)
}

func simdString(i simdjson.Iter, key string) *string {
	elem, err := i.FindElement(nil, key)
	if err != nil {
		return nil
	}
	switch elem.Type {
	case simdjson.TypeString, simdjson.TypeInt, simdjson.TypeUint, simdjson.TypeFloat:
		s, err := elem.Iter.StringCvt()
		if err != nil {
			return nil
		}
		return &s
	}
	return nil
}

func simdFloat(i simdjson.Iter, key string) *float64 {
	elem, err := i.FindElement(nil, key)
	if err != nil {
		return nil
	}
	switch elem.Type {
	case simdjson.TypeInt, simdjson.TypeUint, simdjson.TypeFloat:
		f, err := elem.Iter.Float()
		if err != nil {
			return nil
		}
		return &f
	case simdjson.TypeString:
		s, err := elem.Iter.String()
		if err != nil {
			return nil
		}
		return parseFloat(s)
	}
	return nil
}
