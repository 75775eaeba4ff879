// Package ledger reads the donations that are already on record for a donee.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"topcontributors/internal/components/assert"
	"topcontributors/internal/components/chrono"
	"topcontributors/internal/components/telemetry"
	"topcontributors/internal/config"
	"topcontributors/internal/contributors"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("topcontributors/ledger")

const (
	report_store_donations = "store.donations"
	report_store_totals    = "store.totals"
)

// Donation is a record already present in the donations table.
type Donation struct {
	Donor string
	// Amount is zero when the record has no amount.
	Amount decimal.Decimal
	// Date is the zero time when the record has no date.
	Date time.Time
	URL  string
}

// Open connects to the ledger database described by cfg.
func Open(cfg config.Ledger) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger: no dsn configured")
	}

	switch cfg.Driver {
	case "mysql":
		mysqlCfg, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("ledger: parse dsn: %w", err)
		}
		mysqlCfg.ParseTime = true
		connector, err := mysql.NewConnector(mysqlCfg)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(connector), nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		return db, nil
	case "libsql":
		return sql.Open("libsql", cfg.DSN)
	}
	return nil, fmt.Errorf("ledger: unknown driver %q", cfg.Driver)
}

// Store reads donations back out of the ledger. Records without a donor
// cannot be attributed to anyone and are skipped with a warning.
type Store struct {
	db  *sql.DB
	tel telemetry.API
}

func NewStore(db *sql.DB, tel telemetry.API) Store {
	assert.NotNil(tel)
	return Store{
		db:  db,
		tel: telemetry.NewScopedAPI("ledger", tel),
	}
}

// day accepts whatever each driver hands back for a date column.
type day struct {
	time.Time
}

func (d *day) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Time = time.Time{}
		return nil
	case time.Time:
		d.Time = chrono.Day(v.UTC())
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	}
	return fmt.Errorf("cannot scan %T into a date", src)
}

func (d *day) parse(s string) error {
	if len(s) > len(time.DateOnly) {
		s = s[:len(time.DateOnly)]
	}
	t, err := chrono.ParseDay(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Donations returns every recorded donation to donee ordered by date.
func (s Store) Donations(ctx context.Context, donee string) ([]Donation, error) {
	ctx, span := tracer.Start(ctx, "Donations")
	defer span.End()

	rows, err := s.db.QueryContext(
		ctx,
		`select donor, amount, donation_date, url from donations
		where donee = ?
		order by donation_date, donor`,
		donee,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("ledger: query donations: %w", err)
	}
	defer rows.Close()

	var out []Donation
	skipped := 0
	for rows.Next() {
		var donor sql.NullString
		var amount decimal.NullDecimal
		var date day
		var url sql.NullString
		err = rows.Scan(&donor, &amount, &date, &url)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan donation: %w", err)
		}
		if !donor.Valid {
			skipped++
			s.tel.ReportWarning(
				report_store_donations,
				"skipped record without a donor",
				amount.Decimal.String(), url.String,
			)
			continue
		}

		d := Donation{
			Donor:  donor.String,
			Amount: decimal.Zero,
			Date:   date.Time,
			URL:    url.String,
		}
		if amount.Valid {
			d.Amount = amount.Decimal
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "iterate failed")
		return nil, fmt.Errorf("ledger: read donations: %w", err)
	}

	span.SetAttributes(
		attribute.Int("donations", len(out)),
		attribute.Int("skipped", skipped),
	)
	return out, nil
}

// Totals returns the sum of recorded donations to donee per donor.
func (s Store) Totals(ctx context.Context, donee string) (contributors.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Totals")
	defer span.End()

	rows, err := s.db.QueryContext(
		ctx,
		`select donor, sum(amount) from donations
		where donee = ?
		group by donor`,
		donee,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return contributors.Snapshot{}, fmt.Errorf("ledger: query totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var donor sql.NullString
		var total decimal.NullDecimal
		err = rows.Scan(&donor, &total)
		if err != nil {
			return contributors.Snapshot{}, fmt.Errorf("ledger: scan total: %w", err)
		}
		if !donor.Valid {
			s.tel.ReportWarning(
				report_store_totals,
				"skipped total of records without a donor",
				total.Decimal.String(),
			)
			continue
		}
		totals[donor.String] = decimal.Zero
		if total.Valid {
			totals[donor.String] = total.Decimal
		}
	}
	if err := rows.Err(); err != nil {
		return contributors.Snapshot{}, fmt.Errorf("ledger: read totals: %w", err)
	}
	return contributors.NewSnapshot(totals), nil
}

// Totals sums already loaded donations per donor.
func Totals(donations []Donation) contributors.Snapshot {
	totals := make(map[string]decimal.Decimal)
	for _, d := range donations {
		totals[d.Donor] = totals[d.Donor].Add(d.Amount)
	}
	return contributors.NewSnapshot(totals)
}
