package chargemaster

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// WriteCSV writes records as silver CSV with the Columns header. Nulls are
// written as empty cells.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return errors.Wrap(err, "write header")
	}

	row := make([]string, len(Columns))
	for i := range records {
		r := &records[i]
		row[0] = fmtStr(r.Description)
		row[1] = r.Code
		row[2] = fmtFloat(r.Gross)
		row[3] = fmtFloat(r.DiscountedCash)
		row[4] = fmtFloat(r.Min)
		row[5] = fmtFloat(r.Max)
		row[6] = fmtStr(r.Payer)
		row[7] = fmtStr(r.Plan)
		row[8] = fmtFloat(r.EstimatedAmount)
		row[9] = fmtFloat(r.NegotiatedPercentage)
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "write row %d", i)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV reads silver CSV. Columns are located by header name, so column
// order and extra columns do not matter. "code|1" is accepted for "code".
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if h == "code|1" {
			h = "code"
		}
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	if _, ok := idx["code"]; !ok {
		return nil, errors.New("silver csv has no code column")
	}

	var records []Record
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "read line %d", line)
		}

		var rec Record
		rec.Description = optStr(row, idx, "description")
		rec.Code = strings.TrimSpace(cell(row, idx, "code"))
		rec.Payer = optStr(row, idx, "payer")
		rec.Plan = optStr(row, idx, "plan")

		for _, f := range []struct {
			col string
			dst **float64
		}{
			{"gross", &rec.Gross},
			{"discounted_cash", &rec.DiscountedCash},
			{"min", &rec.Min},
			{"max", &rec.Max},
			{"estimated_amount", &rec.EstimatedAmount},
			{"negotiated_percentage", &rec.NegotiatedPercentage},
		} {
			v, err := optFloat(row, idx, f.col)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d column %s", line, f.col)
			}
			*f.dst = v
		}
		records = append(records, rec)
	}
	return records, nil
}

func cell(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func optStr(row []string, idx map[string]int, col string) *string {
	s := cell(row, idx, col)
	if s == "" {
		return nil
	}
	return &s
}

func optFloat(row []string, idx map[string]int, col string) (*float64, error) {
	s := strings.TrimSpace(cell(row, idx, col))
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func fmtStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func fmtFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
