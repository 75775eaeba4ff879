package commands

import (
	"fmt"
	"io"
	"os"
	"time"
	"topcontributors/internal/cumulative"
	"topcontributors/internal/sqlgen"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
)

type outputOptions struct {
	format string
	schema sqlgen.Schema
}

func parseOutputOptions(format, schema string) (outputOptions, error) {
	switch format {
	case "sql", "table":
	default:
		return outputOptions{}, fmt.Errorf("unknown format %q, expected sql or table", format)
	}
	parsed, err := sqlgen.ParseSchema(schema)
	if err != nil {
		return outputOptions{}, err
	}
	return outputOptions{format: format, schema: parsed}, nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// write renders donations to the primary output. Nothing is written when there
// are no donations.
func (e *env) write(donations []cumulative.Donation) error {
	if len(donations) == 0 {
		return nil
	}

	switch e.output.format {
	case "table":
		t := newTable(e.stdout)
		t.AppendHeader(table.Row{"Donor", "Amount", "Date", "URL"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Amount", Align: text.AlignRight, AlignFooter: text.AlignRight},
		})
		total := decimal.Zero
		for _, d := range donations {
			total = total.Add(d.Amount)
			t.AppendRow(table.Row{
				d.Donor,
				sqlgen.FormatAmount(d.Amount),
				d.Date.Format(time.DateOnly),
				d.URL,
			})
		}
		t.AppendFooter(table.Row{len(donations), sqlgen.FormatAmount(total), "", ""})
		t.Render()
		return nil
	default:
		writer := sqlgen.Writer{Schema: e.output.schema}
		return writer.Write(e.stdout, sqlgen.NewRecords(donations, e.defaults()))
	}
}

// summarizeInconsistencies lists every decreasing total on stderr so they can
// be reviewed by hand.
func summarizeInconsistencies(inconsistencies []cumulative.Inconsistency) {
	if len(inconsistencies) == 0 {
		return
	}

	fmt.Fprintf(os.Stderr, "%d inconsistencies were found, no donations were emitted for them:\n", len(inconsistencies))
	t := newTable(os.Stderr)
	t.AppendHeader(table.Row{"Donor", "Before", "", "After", "", "Source"})
	for _, i := range inconsistencies {
		t.AppendRow(table.Row{
			i.Donor,
			sqlgen.FormatAmount(i.Older), formatDate(i.OlderDate),
			sqlgen.FormatAmount(i.Newer), formatDate(i.NewerDate),
			i.URL,
		})
	}
	t.Render()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "ledger"
	}
	return t.Format(time.DateOnly)
}
