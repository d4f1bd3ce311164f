package warehouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/hospital-prices/internal/chargemaster"
)

func f64(v float64) *float64 { return &v }

func sampleRecords() []chargemaster.Record {
	return []chargemaster.Record{
		{
			Description: str("Office Visit"), Code: "99213",
			Gross: f64(300), DiscountedCash: f64(200), Min: f64(40), Max: f64(200),
			Payer: str("Aetna"), Plan: str("Ppo"),
			EstimatedAmount: f64(50), NegotiatedPercentage: f64(25),
		},
		{
			Description: str("Office Visit"), Code: "99213",
			Max:   f64(200),
			Payer: str("Cigna"), Plan: str("Ppo"),
			NegotiatedPercentage: f64(65.5),
		},
		{
			Description: str("Office Visit Extended"), Code: "99214",
			Payer: str("Aetna"), Plan: str("Hmo"),
			EstimatedAmount: f64(123.45),
		},
	}
}

func TestLoader_Load(t *testing.T) {
	ids := resetDB(t, "General Hospital")
	l := NewLoader(testPool, nil)

	res, err := l.Load(context.Background(), "silver/General-Hospital.csv", sampleRecords())
	require.NoError(t, err)

	assert.False(t, res.AlreadyLoaded)
	assert.Equal(t, ids["General Hospital"], res.HospitalID)
	assert.Equal(t, int64(3), res.Facts)
	assert.Equal(t, MapStats{Payers: 2, Plans: 3, Codes: 2}, res.Inserted)
	assert.Empty(t, res.Unresolved)

	assert.Equal(t, 2, countRows(t, "payer"))
	assert.Equal(t, 3, countRows(t, "plan"))
	assert.Equal(t, 2, countRows(t, "code_description"))
	assert.Equal(t, 3, countRows(t, "price"))

	var gross, pct *float64
	var payer, plan, code string
	err = testPool.QueryRow(context.Background(), `
		SELECT p.gross::float8, p.negotiated_percentage::float8, py.payer_name, pl.plan_name, c.cpt_code
		FROM price p
		JOIN payer py ON py.payer_id = p.payer_id
		JOIN plan pl ON pl.plan_id = p.plan_id AND pl.payer_id = p.payer_id
		JOIN code_description c ON c.code_id = p.code_id
		WHERE py.payer_name = 'Cigna'`).Scan(&gross, &pct, &payer, &plan, &code)
	require.NoError(t, err)
	assert.Nil(t, gross)
	assert.Equal(t, 65.5, *pct)
	assert.Equal(t, "Ppo", plan)
	assert.Equal(t, "99213", code)
}

func TestLoader_SecondLoadIsNoop(t *testing.T) {
	resetDB(t, "General Hospital")
	l := NewLoader(testPool, nil)
	ctx := context.Background()

	_, err := l.Load(ctx, "General-Hospital.csv", sampleRecords())
	require.NoError(t, err)

	more := append(sampleRecords(), chargemaster.Record{
		Code: "99999", Payer: str("Humana"), Plan: str("Gold"),
	})
	res, err := l.Load(ctx, "General-Hospital.csv", more)
	require.NoError(t, err)

	assert.True(t, res.AlreadyLoaded)
	assert.Equal(t, int64(3), res.ExistingFacts)
	assert.Zero(t, res.Facts)
	assert.ErrorIs(t, res.Err(), ErrAlreadyLoaded)

	assert.Equal(t, 3, countRows(t, "price"))
	assert.Equal(t, 2, countRows(t, "payer"), "no dimension work after the guard trips")
}

func TestLoader_HospitalNotFound(t *testing.T) {
	resetDB(t, "General Hospital")

	_, err := NewLoader(testPool, nil).Load(context.Background(), "Unknown-Clinic.json", sampleRecords())

	assert.ErrorIs(t, err, ErrHospitalNotFound)
	assert.NotErrorIs(t, err, ErrTransaction)
	assert.Zero(t, countRows(t, "payer"))
	assert.Zero(t, countRows(t, "price"))
}

func TestLoader_DropsUnresolvedRows(t *testing.T) {
	resetDB(t, "General Hospital")

	records := append(sampleRecords(),
		chargemaster.Record{Code: "99213", Plan: str("Ppo")},
		chargemaster.Record{Code: "99213", Payer: str("Aetna")},
		chargemaster.Record{Code: "", Payer: str("Aetna"), Plan: str("Ppo")},
	)
	res, err := NewLoader(testPool, nil).Load(context.Background(), "General-Hospital.csv", records)
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.Facts)
	assert.Equal(t, map[string]int{UnresolvedPayer: 1, UnresolvedPlan: 1, UnresolvedCode: 1}, res.Unresolved)
	assert.Equal(t, 2, countRows(t, "code_description"), "empty codes are never inserted")
}

func TestLoader_RollsBackDimensionsOnFailure(t *testing.T) {
	resetDB(t, "General Hospital")
	ctx := context.Background()

	_, err := testPool.Exec(ctx, `
		CREATE OR REPLACE FUNCTION reject_price() RETURNS trigger AS $$
		BEGIN RAISE EXCEPTION 'price insert rejected'; END $$ LANGUAGE plpgsql;
		CREATE TRIGGER reject_price BEFORE INSERT ON price FOR EACH ROW EXECUTE FUNCTION reject_price();`)
	require.NoError(t, err)
	t.Cleanup(func() {
		testPool.Exec(ctx, "DROP TRIGGER IF EXISTS reject_price ON price")
	})

	_, err = NewLoader(testPool, nil).Load(ctx, "General-Hospital.csv", sampleRecords())

	require.ErrorIs(t, err, ErrTransaction)
	assert.Contains(t, err.Error(), "price insert rejected")
	assert.Zero(t, countRows(t, "payer"))
	assert.Zero(t, countRows(t, "plan"))
	assert.Zero(t, countRows(t, "code_description"))
	assert.Zero(t, countRows(t, "price"))
}

func TestLoader_EmptyRecords(t *testing.T) {
	resetDB(t, "General Hospital")

	res, err := NewLoader(testPool, nil).Load(context.Background(), "General-Hospital.csv", nil)
	require.NoError(t, err)
	assert.Zero(t, res.Facts)
}

func TestHospitalNameFromFile(t *testing.T) {
	tests := map[string]string{
		"General-Hospital.csv":               "General Hospital",
		"silver/St-Mary-Medical-Center.json": "St Mary Medical Center",
		"bronze/Mercy-West.csv.gz":           "Mercy West",
		"Mercy West.parquet":                 "Mercy West",
		"noext":                              "noext",
	}
	for in, want := range tests {
		assert.Equal(t, want, HospitalNameFromFile(in), in)
	}
}
