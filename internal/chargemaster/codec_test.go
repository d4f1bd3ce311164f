package chargemaster

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	return []Record{
		{
			Description:          StrPtr("Office visit, established"),
			Code:                 "99213",
			Gross:                F64Ptr(250),
			DiscountedCash:       F64Ptr(180.5),
			Min:                  F64Ptr(90),
			Max:                  F64Ptr(200),
			Payer:                StrPtr("Aetna"),
			Plan:                 StrPtr("Ppo"),
			EstimatedAmount:      F64Ptr(160),
			NegotiatedPercentage: F64Ptr(80),
		},
		{
			Code:  "99214",
			Max:   F64Ptr(310.25),
			Payer: StrPtr("Cigna"),
		},
	}
}

func TestCSV_PreservesNulls(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(Columns, ","), lines[0])
	assert.Equal(t, ",99214,,,,310.25,Cigna,,,", lines[2])

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)
}

func TestReadCSV_LegacyCodeHeader(t *testing.T) {
	in := "code|1,payer,plan,max,extra\n99213,Aetna,Ppo,100,ignored\n"

	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "99213", got[0].Code)
	assert.Equal(t, 100.0, *got[0].Max)
	assert.Nil(t, got[0].Gross)
	assert.Nil(t, got[0].Description)
}

func TestReadCSV_MissingCodeColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("payer,plan\nAetna,Ppo\n"))
	assert.Error(t, err)
}

func TestReadCSV_BadNumber(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("code,max\n99213,abc\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2 column max")
}

func TestParquet_PreservesNulls(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, sampleRecords()))

	got, err := ReadParquet(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)
}

func TestFormatForKey(t *testing.T) {
	assert.Equal(t, FormatParquet, FormatForKey("silver/General-Hospital.parquet"))
	assert.Equal(t, FormatCSV, FormatForKey("silver/General-Hospital.csv"))

	_, err := ParseFormat("xlsx")
	assert.Error(t, err)
	f, err := ParseFormat("PARQUET")
	require.NoError(t, err)
	assert.Equal(t, ".parquet", f.Ext())
}
