package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"topcontributors/internal/components/chrono"
	"topcontributors/internal/components/telemetry"
	"topcontributors/internal/config"
	"topcontributors/internal/contributors"
	"topcontributors/internal/ledger"
	"topcontributors/internal/sqlgen"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func donorTable(rows ...string) string {
	return `<html><body>
<table><tr><td>navigation</td></tr></table>
<table><tr><th>Donor</th><th>Total</th></tr>` + strings.Join(rows, "") + `</table>
</body></html>`
}

var pages = map[string]string{
	"/a": donorTable(
		`<tr><td>Alice</td><td>$100</td></tr>`,
		`<tr><td>Bob</td><td>$50</td></tr>`,
		`<tr><td>Open Philanthropy Project</td><td>$1,000,000</td></tr>`,
	),
	"/b": donorTable(
		`<tr><td>Alice</td><td>$250</td></tr>`,
		`<tr><td>Bob</td><td>$50</td></tr>`,
		`<tr><td>Carol</td><td>$10</td></tr>`,
		`<tr><td>Marius van Voorden (via Bitcoin)</td><td>$20</td></tr>`,
	),
	"/live": donorTable(
		`<tr><td>Alice</td><td>$300</td></tr>`,
		`<tr><td>Bob</td><td>$40</td></tr>`,
		`<tr><td>Carol</td><td>$10</td></tr>`,
		`<tr><td>Marius van Voorden</td><td>$20</td></tr>`,
		`<tr><td>Dave</td><td>$5</td></tr>`,
	),
	"/broken": donorTable(
		`<tr><td>Alice</td><td>$300</td></tr>`,
		`<tr><td>Alice</td><td>$40</td></tr>`,
	),
}

const ledgerSql = `
create table donations (
    donor varchar(256) not null,
    donee varchar(256) not null,
    amount decimal(16, 2),
    donation_date date,
    url varchar(1000)
);
insert into donations (donor, donee, amount, donation_date, url) values
    ('Alice', 'Machine Intelligence Research Institute', 100, '2015-01-17', 'x'),
    ('Carol', 'Machine Intelligence Research Institute', 10, '2015-05-07', 'y');
`

type fixture struct {
	server *httptest.Server
	cfg    config.Config
	stdout *bytes.Buffer
	rec    *telemetry.Recorder
}

func setup(t *testing.T, withLedger bool) fixture {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)

	cfg, err := config.Defaults()
	require.NoError(t, err)
	cfg.Sources = []config.Source{
		{URL: server.URL + "/a", Date: "2015-01-17"},
		{URL: server.URL + "/b", Date: "2015-05-07"},
	}
	cfg.LiveURL = server.URL + "/live"

	if withLedger {
		cfg.Ledger = config.Ledger{
			Driver: "sqlite",
			DSN:    filepath.Join(t.TempDir(), "ledger.db"),
		}
		db, err := ledger.Open(cfg.Ledger)
		require.NoError(t, err)
		_, err = db.Exec(ledgerSql)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	}

	return fixture{
		server: server,
		cfg:    cfg,
		stdout: &bytes.Buffer{},
		rec:    telemetry.NewRecorder(),
	}
}

func (f fixture) env(t *testing.T, format string) *env {
	opts, err := parseOutputOptions(format, f.cfg.Record.Schema)
	require.NoError(t, err)

	e, err := newEnv(f.cfg, envOptions{
		output: opts,
		stdout: f.stdout,
		clock:  chrono.FixedImpl{At: time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)},
	}, f.rec)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func tuple(f fixture, donor string, amount int64, date, path string) string {
	d, err := chrono.ParseDay(date)
	if err != nil {
		panic(err)
	}
	return sqlgen.SchemaFull.Tuple(sqlgen.Record{
		Donor:         donor,
		Donee:         "Machine Intelligence Research Institute",
		Amount:        decimal.NewFromInt(amount),
		Date:          d,
		DatePrecision: "year",
		DateBasis:     "donee contributor list",
		CauseArea:     "AI risk",
		URL:           f.server.URL + path,
	})
}

func statementRows(t *testing.T, out string) []string {
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	require.True(t, strings.HasPrefix(lines[0], "insert into donations ("))
	require.Equal(t, ";", lines[len(lines)-1])

	var rows []string
	for _, line := range lines[1 : len(lines)-1] {
		line = strings.TrimPrefix(line, "    ")
		rows = append(rows, strings.TrimPrefix(line, ","))
	}
	return rows
}

func TestHistoryWithoutLedger(t *testing.T) {
	f := setup(t, false)
	e := f.env(t, "sql")

	require.NoError(t, e.history(context.Background(), true))

	require.Equal(t, []string{
		tuple(f, "Alice", 100, "2015-01-17", "/a"),
		tuple(f, "Bob", 50, "2015-01-17", "/a"),
		tuple(f, "Alice", 150, "2015-05-07", "/b"),
		tuple(f, "Carol", 10, "2015-05-07", "/b"),
		tuple(f, "Marius van Voorden", 20, "2015-05-07", "/b"),
	}, statementRows(t, f.stdout.String()))
}

func TestHistoryWithLedger(t *testing.T) {
	f := setup(t, true)
	e := f.env(t, "sql")

	require.NoError(t, e.history(context.Background(), true))

	require.Equal(t, []string{
		tuple(f, "Bob", 50, "2015-01-17", "/a"),
		tuple(f, "Alice", 150, "2015-05-07", "/b"),
		tuple(f, "Marius van Voorden", 20, "2015-05-07", "/b"),
	}, statementRows(t, f.stdout.String()))
}

func TestHistoryNoLedgerFlag(t *testing.T) {
	f := setup(t, true)
	e := f.env(t, "sql")

	require.NoError(t, e.history(context.Background(), false))
	require.Len(t, statementRows(t, f.stdout.String()), 5)
}

func TestHistoryFetchFailure(t *testing.T) {
	f := setup(t, false)
	f.cfg.Sources = append(f.cfg.Sources, config.Source{URL: f.server.URL + "/gone", Date: "2016-01-01"})
	e := f.env(t, "sql")

	require.Error(t, e.history(context.Background(), true))
	require.Zero(t, f.stdout.Len())
}

func TestLatest(t *testing.T) {
	f := setup(t, true)
	e := f.env(t, "sql")

	require.NoError(t, e.latest(context.Background()))

	require.Equal(t, []string{
		tuple(f, "Alice", 200, "2024-03-01", "/live"),
		tuple(f, "Bob", 40, "2024-03-01", "/live"),
		tuple(f, "Dave", 5, "2024-03-01", "/live"),
		tuple(f, "Marius van Voorden", 20, "2024-03-01", "/live"),
	}, statementRows(t, f.stdout.String()))
}

func TestLatestNothingNew(t *testing.T) {
	f := setup(t, true)
	f.cfg.LiveURL = f.server.URL + "/a"
	f.cfg.IgnoredDonors = append(f.cfg.IgnoredDonors, "Bob")
	e := f.env(t, "sql")

	require.NoError(t, e.latest(context.Background()))
	require.Zero(t, f.stdout.Len())
}

func TestLatestRequiresLedger(t *testing.T) {
	f := setup(t, false)
	e := f.env(t, "sql")

	require.ErrorContains(t, e.latest(context.Background()), "ledger.dsn")
	require.Zero(t, f.stdout.Len())
}

func TestLatestExtractionFailure(t *testing.T) {
	f := setup(t, true)
	f.cfg.LiveURL = f.server.URL + "/broken"
	e := f.env(t, "sql")

	err := e.latest(context.Background())
	var dup *contributors.DuplicateDonorError
	require.ErrorAs(t, err, &dup)
	require.Zero(t, f.stdout.Len())
}

func TestTableFormat(t *testing.T) {
	f := setup(t, true)
	e := f.env(t, "table")

	require.NoError(t, e.latest(context.Background()))

	out := f.stdout.String()
	require.NotContains(t, out, "insert into")
	require.Contains(t, out, "Marius van Voorden")
	require.Contains(t, out, "200.00")
	// footer total
	require.Contains(t, out, "265.00")
}

func TestParseOutputOptions(t *testing.T) {
	opts, err := parseOutputOptions("sql", "compact")
	require.NoError(t, err)
	require.Equal(t, sqlgen.SchemaCompact, opts.schema)

	_, err = parseOutputOptions("csv", "full")
	require.Error(t, err)

	_, err = parseOutputOptions("sql", "wide")
	require.Error(t, err)
}

func TestRootWithoutMode(t *testing.T) {
	for _, args := range [][]string{{}, {"bogus"}} {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(args)

		require.NoError(t, rootCmd.Execute())
		require.Contains(t, out.String(), "history")
		require.Contains(t, out.String(), "latest")
	}
}
