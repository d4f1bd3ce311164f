package warehouse

import (
	"context"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Fact is one price row with its dimension keys resolved.
type Fact struct {
	CodeID, PayerID, PlanID, HospitalID int32

	Gross                *float64
	DiscountedCash       *float64
	Min                  *float64
	Max                  *float64
	EstimatedAmount      *float64
	NegotiatedPercentage *float64
}

var priceCopyCols = []string{
	"code_id", "gross", "discounted_cash", "min_price", "max_price",
	"estimated_amount", "negotiated_percentage", "payer_id", "plan_id", "hospital_id",
}

// FactLoader bulk-inserts price rows.
type FactLoader struct{}

// Insert copies facts into the price table and returns the row count.
func (FactLoader) Insert(ctx context.Context, s *Scope, facts []Fact) (int64, error) {
	if len(facts) == 0 {
		return 0, nil
	}
	n, err := s.tx.CopyFrom(ctx, pgx.Identifier{"price"}, priceCopyCols,
		pgx.CopyFromSlice(len(facts), func(i int) ([]any, error) {
			f := &facts[i]
			return []any{
				f.CodeID,
				toNumeric(f.Gross),
				toNumeric(f.DiscountedCash),
				toNumeric(f.Min),
				toNumeric(f.Max),
				toNumeric(f.EstimatedAmount),
				toNumeric(f.NegotiatedPercentage),
				f.PayerID,
				f.PlanID,
				f.HospitalID,
			}, nil
		}),
	)
	return n, txFailed("insert prices", err)
}

func toNumeric(v *float64) pgtype.Numeric {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return pgtype.Numeric{}
	}
	d := decimal.NewFromFloat(*v)
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
