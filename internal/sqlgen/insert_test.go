package sqlgen

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"topcontributors/internal/cumulative"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var miri = Defaults{
	Donee:         "Machine Intelligence Research Institute",
	DatePrecision: "year",
	DateBasis:     "donee contributor list",
	CauseArea:     "AI risk",
}

func donations() []cumulative.Donation {
	date := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return []cumulative.Donation{
		{Donor: "Bob", Amount: decimal.NewFromInt(50), Date: date, URL: "https://example.org/page"},
		{Donor: "O'Brien", Amount: decimal.RequireFromString("150.5"), Date: date, URL: "https://example.org/page"},
	}
}

func TestTupleFull(t *testing.T) {
	record := NewRecord(donations()[1], miri)
	require.Equal(
		t,
		"('O''Brien','Machine Intelligence Research Institute',150.50,'2020-01-01',"+
			"'year','donee contributor list','AI risk','https://example.org/page',"+
			"NULL,NULL,NULL,NULL)",
		SchemaFull.Tuple(record),
	)
}

func TestTupleCompact(t *testing.T) {
	record := NewRecord(donations()[0], miri)
	require.Equal(
		t,
		"('Bob','Machine Intelligence Research Institute',50.00,'2020-01-01',"+
			"'year','donee contributor list','AI risk','https://example.org/page')",
		SchemaCompact.Tuple(record),
	)
	require.Len(t, SchemaCompact.Columns(), 8)
	require.Len(t, SchemaFull.Columns(), 12)
}

func TestWrite(t *testing.T) {
	var out bytes.Buffer
	err := Writer{Schema: SchemaFull}.Write(&out, NewRecords(donations(), miri))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "insert into donations (donor, donee, amount, donation_date, "+
		"donation_date_precision, donation_date_basis, cause_area, url, "+
		"donor_cause_area_url, notes, affected_countries, affected_regions) values", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "    ('Bob',"))
	require.True(t, strings.HasPrefix(lines[2], "    ,('O''Brien',"))
	require.Equal(t, ";", lines[3])
	require.Equal(t, 1, strings.Count(out.String(), "insert into"))
}

func TestWriteEmpty(t *testing.T) {
	var out bytes.Buffer
	err := Writer{}.Write(&out, nil)
	require.NoError(t, err)
	require.Zero(t, out.Len())
}

func TestFormatAmount(t *testing.T) {
	testCases := []struct {
		amount   string
		expected string
	}{
		{amount: "149.995", expected: "150.00"},
		{amount: "1234567.89", expected: "1234567.89"},
		{amount: "0.02", expected: "0.02"},
		{amount: "100", expected: "100.00"},
		{amount: "123456789012345678.25", expected: "123456789012345678.25"},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, FormatAmount(decimal.RequireFromString(test.amount)), test.amount)
	}

	// sums of cents stay exact
	sum := decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2"))
	require.Equal(t, "0.30", FormatAmount(sum))
}

func TestParseSchema(t *testing.T) {
	schema, err := ParseSchema("")
	require.NoError(t, err)
	require.Equal(t, SchemaFull, schema)

	schema, err = ParseSchema("compact")
	require.NoError(t, err)
	require.Equal(t, SchemaCompact, schema)
	require.Equal(t, "compact", schema.String())

	_, err = ParseSchema("wide")
	require.Error(t, err)
}
