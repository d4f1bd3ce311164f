package transform

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	simdjson "github.com/minio/simdjson-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chargeJSON = `{
	"hospital_name": "General Hospital",
	"last_updated_on": "2024-07-01",
	"affirmation": {"affirmation": "To the best of its knowledge", "confirm_affirmation": true},
	"hospital_address": ["1 Main St"],
	"standard_charge_information": [
		{
			"description": "Office visit, est. patient",
			"code_information": [
				{"code": "99213", "type": "CPT"},
				{"code": "G0463", "type": "HCPCS"}
			],
			"standard_charges": [
				{
					"minimum": 40, "maximum": 200, "gross_charge": 300, "discounted_cash": "1,200.50",
					"setting": "outpatient",
					"payers_information": [
						{"payer_name": "Aetna", "plan_name": "PPO", "standard_charge_dollar": 50, "methodology": "fee schedule"},
						{"payer_name": "CIGNA", "plan_name": "open  access", "standard_charge_dollar": 120,
						 "standard_charge_percentage": 65, "estimated_amount": 110}
					]
				}
			]
		},
		{
			"description": "Established visit",
			"code_information": [{"code": 99214, "type": "cpt"}],
			"standard_charges": [
				{
					"minimum": 10, "maximum": 100, "gross_charge": 150, "discounted_cash": 90,
					"payers_information": [{"payer_name": "Aetna", "standard_charge_dollar": 80}]
				}
			]
		}
	],
	"modifier_information": []
}`

func TestTransformJSON_Flatten(t *testing.T) {
	got, report, err := TransformJSON(strings.NewReader(chargeJSON), JSONOptions{})
	require.NoError(t, err)

	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, "99213", r.Code)
		assert.Equal(t, "Office Visit Est Patient", *r.Description)
		assert.Equal(t, 300.0, *r.Gross)
		assert.Equal(t, 1200.5, *r.DiscountedCash)
		assert.Equal(t, 40.0, *r.Min)
		assert.Equal(t, 200.0, *r.Max)
	}

	assert.Equal(t, "Aetna", *got[0].Payer)
	assert.Equal(t, "Ppo", *got[0].Plan)
	assert.Equal(t, 50.0, *got[0].EstimatedAmount)
	assert.Equal(t, 25.0, *got[0].NegotiatedPercentage)

	assert.Equal(t, "Cigna", *got[1].Payer)
	assert.Equal(t, "Open Access", *got[1].Plan)
	assert.Equal(t, 120.0, *got[1].EstimatedAmount)
	assert.Equal(t, 65.0, *got[1].NegotiatedPercentage)

	assert.Equal(t, &ValidationReport{Rows: 3, Dropped: 1, MissingByField: map[string]int{"plan": 1}}, report)
}

func TestTransformJSON_AmountFromEstimated(t *testing.T) {
	got, _, err := TransformJSON(strings.NewReader(chargeJSON), JSONOptions{AmountSource: AmountFromEstimated})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Nil(t, got[0].EstimatedAmount)
	assert.Equal(t, 110.0, *got[1].EstimatedAmount)
	assert.Equal(t, 25.0, *got[0].NegotiatedPercentage, "imputation still uses negotiated dollars")
}

func TestTransformJSON_PolicyFail(t *testing.T) {
	_, _, err := TransformJSON(strings.NewReader(chargeJSON), JSONOptions{Policy: PolicyFail})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 2, verr.Row)
	assert.Equal(t, []string{"plan"}, verr.Missing)
}

func TestTransformJSON_AllRowsInvalid(t *testing.T) {
	doc := `{"standard_charge_information": [{
		"description": "Visit",
		"code_information": [{"code": "99213", "type": "CPT"}],
		"standard_charges": [{"maximum": 100, "payers_information": [
			{"payer_name": "Aetna", "plan_name": "PPO", "standard_charge_dollar": 10},
			{"payer_name": "Cigna", "plan_name": "HMO"}
		]}]
	}]}`

	_, report, err := TransformJSON(strings.NewReader(doc), JSONOptions{})

	assert.ErrorIs(t, err, ErrNoValidRows)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Dropped)
	assert.Equal(t, map[string]int{
		"gross": 2, "discounted_cash": 2, "min": 2, "negotiated_dollar": 1,
	}, report.MissingByField)
}

func TestTransformJSON_NoCPTCodes(t *testing.T) {
	doc := `{"standard_charge_information": [{
		"description": "Room",
		"code_information": [{"code": "0110", "type": "RC"}],
		"standard_charges": [{"payers_information": [{"payer_name": "Aetna"}]}]
	}]}`

	got, report, err := TransformJSON(strings.NewReader(doc), JSONOptions{})

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, report.Rows)
}

func TestTransformJSON_Malformed(t *testing.T) {
	_, _, err := TransformJSON(strings.NewReader(`["not", "an", "object"]`), JSONOptions{})
	assert.Error(t, err)

	_, _, err = TransformJSON(strings.NewReader(`{"standard_charge_information": [{"description": `), JSONOptions{})
	assert.Error(t, err)
}

// edgeChargeJSON carries explicit nulls and numbers where text is expected.
const edgeChargeJSON = `{
	"standard_charge_information": [
		{
			"description": "Lab panel",
			"code_information": [{"code": "80053", "type": "CPT"}],
			"standard_charges": [
				{
					"minimum": 10, "maximum": 200, "gross_charge": null, "discounted_cash": 90,
					"payers_information": [
						{"payer_name": "Aetna", "plan_name": "PPO", "standard_charge_dollar": 50,
						 "standard_charge_percentage": null, "estimated_amount": null}
					]
				}
			]
		},
		{
			"description": "Blood draw",
			"code_information": [{"code": "36415", "type": "CPT"}],
			"standard_charges": [
				{
					"minimum": 1, "maximum": 200, "gross_charge": 30, "discounted_cash": 20,
					"payers_information": [
						{"payer_name": "Aetna", "plan_name": "PPO", "standard_charge_dollar": 50,
						 "standard_charge_percentage": null, "estimated_amount": null},
						{"payer_name": null, "plan_name": "HMO", "standard_charge_dollar": 40}
					]
				}
			]
		},
		{
			"description": 12345,
			"code_information": [{"code": 99215, "type": "CPT"}, {"code": "X1", "type": null}],
			"standard_charges": [
				{
					"minimum": 1, "maximum": 100, "gross_charge": 30, "discounted_cash": 20,
					"payers_information": [{"payer_name": 42, "plan_name": 7, "standard_charge_dollar": 10}]
				}
			]
		}
	]
}`

func TestFlexibleTypes_Null(t *testing.T) {
	var f FlexibleFloat
	require.NoError(t, json.Unmarshal([]byte(" null"), &f))
	assert.Nil(t, f.Value)

	var s FlexibleString
	require.NoError(t, json.Unmarshal([]byte("null"), &s))
	assert.Nil(t, s.Value)

	require.NoError(t, json.Unmarshal([]byte("17"), &s))
	require.NotNil(t, s.Value)
	assert.Equal(t, "17", *s.Value)
}

func TestFlattenCharge_ExplicitNulls(t *testing.T) {
	var doc struct {
		Info []json.RawMessage `json:"standard_charge_information"`
	}
	require.NoError(t, json.Unmarshal([]byte(edgeChargeJSON), &doc))

	rows, err := flattenCharge(doc.Info[0], nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].gross)
	assert.Nil(t, rows[0].pct)
	assert.Nil(t, rows[0].estimated)
	assert.Equal(t, 50.0, *rows[0].dollar)

	rows, err = flattenCharge(doc.Info[1], nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[1].payer)
}

func TestFlattenCharge_NumericText(t *testing.T) {
	var doc struct {
		Info []json.RawMessage `json:"standard_charge_information"`
	}
	require.NoError(t, json.Unmarshal([]byte(edgeChargeJSON), &doc))

	rows, err := flattenCharge(doc.Info[2], nil)
	require.NoError(t, err)
	require.Len(t, rows, 1, "the code with a null type is not CPT")
	assert.Equal(t, "99215", *rows[0].code)
	require.NotNil(t, rows[0].description)
	require.NotNil(t, rows[0].payer)
	require.NotNil(t, rows[0].plan)
}

func TestTransformJSON_ExplicitNulls(t *testing.T) {
	got, report, err := TransformJSON(strings.NewReader(edgeChargeJSON), JSONOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Rows)
	assert.Equal(t, 2, report.Dropped)
	assert.Equal(t, map[string]int{"gross": 1, "payer": 1}, report.MissingByField)

	require.Len(t, got, 2)
	assert.Equal(t, "36415", got[0].Code)
	require.NotNil(t, got[0].NegotiatedPercentage)
	assert.Equal(t, 25.0, *got[0].NegotiatedPercentage, "a null percentage is imputed")
	assert.Equal(t, 50.0, *got[0].EstimatedAmount)
	assert.Equal(t, "99215", got[1].Code)

	got, _, err = TransformJSON(strings.NewReader(edgeChargeJSON), JSONOptions{AmountSource: AmountFromEstimated})
	require.NoError(t, err)
	assert.Nil(t, got[0].EstimatedAmount, "a null estimated_amount stays null")
}

func TestFlattenCharge_SimdMatchesStdlib(t *testing.T) {
	if !simdjson.SupportedCPU() {
		t.Skip("simdjson not supported on this CPU")
	}

	for _, fixture := range []string{chargeJSON, edgeChargeJSON} {
		var doc struct {
			Info []json.RawMessage `json:"standard_charge_information"`
		}
		require.NoError(t, json.Unmarshal([]byte(fixture), &doc))

		for i, raw := range doc.Info {
			want, err := flattenCharge(raw, nil)
			require.NoError(t, err)

			got, _, err := flattenChargeSimd(raw, nil, nil)
			require.NoError(t, err)

			assert.Equal(t, want, got, "entry %d", i)
		}
	}
}
