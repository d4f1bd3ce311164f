// Package chargemaster defines the canonical charge record every source
// format is reshaped into, and the silver-area encodings of it.
package chargemaster

// Record is one canonical charge row: a billing code priced for one
// payer/plan pair. Nil pointers are nulls.
type Record struct {
	Description          *string  `parquet:"description,optional"`
	Code                 string   `parquet:"code"`
	Gross                *float64 `parquet:"gross,optional"`
	DiscountedCash       *float64 `parquet:"discounted_cash,optional"`
	Min                  *float64 `parquet:"min,optional"`
	Max                  *float64 `parquet:"max,optional"`
	Payer                *string  `parquet:"payer,optional"`
	Plan                 *string  `parquet:"plan,optional"`
	EstimatedAmount      *float64 `parquet:"estimated_amount,optional"`
	NegotiatedPercentage *float64 `parquet:"negotiated_percentage,optional"`
}

// Columns is the silver CSV header, in write order.
var Columns = []string{
	"description",
	"code",
	"gross",
	"discounted_cash",
	"min",
	"max",
	"payer",
	"plan",
	"estimated_amount",
	"negotiated_percentage",
}

// Key identifies a record within one source file.
type Key struct {
	Code  string
	Payer string
	Plan  string
}

// Key returns the (code, payer, plan) identity of r. Null payer and plan
// compare equal to each other.
func (r *Record) Key() Key {
	return Key{Code: r.Code, Payer: deref(r.Payer), Plan: deref(r.Plan)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string { return &s }

// F64Ptr returns a pointer to v.
func F64Ptr(v float64) *float64 { return &v }
