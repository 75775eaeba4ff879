package sqlgen

import (
	"fmt"
	"io"
	"strings"
	"time"
	"topcontributors/internal/cumulative"

	"github.com/shopspring/decimal"
)

type Schema int

const (
	SchemaFull Schema = iota
	// SchemaCompact drops the trailing placeholder columns.
	SchemaCompact
)

func ParseSchema(name string) (Schema, error) {
	switch name {
	case "", "full":
		return SchemaFull, nil
	case "compact":
		return SchemaCompact, nil
	}
	return 0, fmt.Errorf("unknown schema %q", name)
}

func (s Schema) String() string {
	if s == SchemaCompact {
		return "compact"
	}
	return "full"
}

var fullColumns = []string{
	"donor",
	"donee",
	"amount",
	"donation_date",
	"donation_date_precision",
	"donation_date_basis",
	"cause_area",
	"url",
	"donor_cause_area_url",
	"notes",
	"affected_countries",
	"affected_regions",
}

func (s Schema) Columns() []string {
	if s == SchemaCompact {
		return fullColumns[:8]
	}
	return fullColumns
}

// Defaults are the column values shared by every record of a run.
type Defaults struct {
	Donee         string
	DatePrecision string
	DateBasis     string
	CauseArea     string
}

type Record struct {
	Donor         string
	Donee         string
	Amount        decimal.Decimal
	Date          time.Time
	DatePrecision string
	DateBasis     string
	CauseArea     string
	URL           string
	// the following are placeholders that are never filled in by this tool
	DonorCauseAreaURL string
	Notes             string
	AffectedCountries string
	AffectedRegions   string
}

func NewRecord(d cumulative.Donation, defaults Defaults) Record {
	return Record{
		Donor:         d.Donor,
		Donee:         defaults.Donee,
		Amount:        d.Amount,
		Date:          d.Date,
		DatePrecision: defaults.DatePrecision,
		DateBasis:     defaults.DateBasis,
		CauseArea:     defaults.CauseArea,
		URL:           d.URL,
	}
}

func NewRecords(donations []cumulative.Donation, defaults Defaults) []Record {
	out := make([]Record, len(donations))
	for i, d := range donations {
		out[i] = NewRecord(d, defaults)
	}
	return out
}

// FormatAmount renders amount with two decimals, no thousands separators.
// Half cents round away from zero.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func (s Schema) values(r Record) []string {
	values := []string{
		Quote(r.Donor),
		Quote(r.Donee),
		FormatAmount(r.Amount),
		Quote(r.Date.Format(time.DateOnly)),
		Quote(r.DatePrecision),
		Quote(r.DateBasis),
		Quote(r.CauseArea),
		Quote(r.URL),
	}
	if s == SchemaCompact {
		return values
	}
	return append(
		values,
		Quote(r.DonorCauseAreaURL),
		Quote(r.Notes),
		Quote(r.AffectedCountries),
		Quote(r.AffectedRegions),
	)
}

// Tuple renders a single parenthesized row of values.
func (s Schema) Tuple(r Record) string {
	return "(" + strings.Join(s.values(r), ",") + ")"
}

type Writer struct {
	Schema Schema
}

// Render returns one multi-row insert statement for records, or the empty
// string when there are none.
func (w Writer) Render(records []Record) string {
	if len(records) == 0 {
		return ""
	}

	var out strings.Builder
	out.WriteString("insert into donations (")
	out.WriteString(strings.Join(w.Schema.Columns(), ", "))
	out.WriteString(") values\n")
	for i, r := range records {
		if i == 0 {
			out.WriteString("    ")
		} else {
			out.WriteString("    ,")
		}
		out.WriteString(w.Schema.Tuple(r))
		out.WriteString("\n")
	}
	out.WriteString(";\n")
	return out.String()
}

// Write renders records fully before writing anything to out, zero records
// write nothing.
func (w Writer) Write(out io.Writer, records []Record) error {
	rendered := w.Render(records)
	if rendered == "" {
		return nil
	}
	_, err := io.WriteString(out, rendered)
	return err
}
