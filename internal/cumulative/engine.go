// Package cumulative infers discrete donations from successive cumulative snapshots.
//
// Published totals only ever grow, so the difference between two snapshots is the
// sum of every donation made between their capture dates. The true date of each
// donation is unknown; donations are dated at the snapshot that revealed them.
package cumulative

import (
	"slices"
	"time"
	"topcontributors/internal/components/assert"
	"topcontributors/internal/components/telemetry"
	"topcontributors/internal/contributors"

	"github.com/shopspring/decimal"
)

// Epsilon is the smallest change in a cumulative total that counts as a
// donation or a decrease. Anything within a cent is rounding on the page.
var Epsilon = decimal.New(1, -2)

const (
	report_engine_diff         = "engine.diff"
	report_engine_inconsistent = "engine.inconsistent"
	report_engine_dropped      = "engine.dropped"
)

// Donation is a contribution inferred from the difference of two snapshots.
type Donation struct {
	Donor  string
	Amount decimal.Decimal
	// Date is the day the revealing snapshot was captured.
	Date time.Time
	// URL is the snapshot that revealed the donation.
	URL string
}

// Inconsistency is a donor whose cumulative total went down between two snapshots.
type Inconsistency struct {
	Donor     string
	Older     decimal.Decimal
	Newer     decimal.Decimal
	OlderDate time.Time
	NewerDate time.Time
	URL       string
}

func (i Inconsistency) Delta() decimal.Decimal {
	return i.Newer.Sub(i.Older)
}

type Result struct {
	Donations       []Donation
	Inconsistencies []Inconsistency
}

func (r *Result) Append(other Result) {
	r.Donations = append(r.Donations, other.Donations...)
	r.Inconsistencies = append(r.Inconsistencies, other.Inconsistencies...)
}

// Engine diffs snapshots. Donors in the ignore set are tracked by a separate
// process and never produce donations here.
type Engine struct {
	ignored map[string]struct{}
	tel     telemetry.API
}

func NewEngine(ignored []string, tel telemetry.API) Engine {
	assert.NotNil(tel)

	set := make(map[string]struct{}, len(ignored))
	for _, donor := range ignored {
		set[donor] = struct{}{}
	}
	return Engine{
		ignored: set,
		tel:     telemetry.NewScopedAPI("cumulative", tel),
	}
}

func (e Engine) Ignored(donor string) bool {
	_, ok := e.ignored[donor]
	return ok
}

// donors returns the union of donors in both snapshots minus the ignore set,
// in lexicographic order so that output is stable across runs.
func (e Engine) donors(older, newer contributors.Snapshot) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range [][]string{older.Donors(), newer.Donors()} {
		for _, donor := range list {
			if e.Ignored(donor) {
				continue
			}
			_, dup := seen[donor]
			if dup {
				continue
			}
			seen[donor] = struct{}{}
			out = append(out, donor)
		}
	}
	slices.Sort(out)
	return out
}

// Diff returns the donations that must have happened between older and newer.
//
// A donor whose total decreased while still being listed in newer is returned as an
// Inconsistency and reported as a warning, no donation is emitted for it. A donor
// missing from newer (dropped off the page) produces nothing.
//
// A zero olderDate means the older totals have no capture date, such as totals
// summed from a ledger, and it is left out of the warning.
func (e Engine) Diff(
	older contributors.Snapshot, olderDate time.Time,
	newer contributors.Snapshot, newerDate time.Time,
	sourceURL string,
) Result {
	var result Result
	for _, donor := range e.donors(older, newer) {
		delta := newer.Amount(donor).Sub(older.Amount(donor))

		switch {
		case delta.GreaterThan(Epsilon):
			result.Donations = append(result.Donations, Donation{
				Donor:  donor,
				Amount: delta,
				Date:   newerDate,
				URL:    sourceURL,
			})
		case delta.LessThan(Epsilon.Neg()) && newer.Has(donor):
			inconsistency := Inconsistency{
				Donor:     donor,
				Older:     older.Amount(donor),
				Newer:     newer.Amount(donor),
				OlderDate: olderDate,
				NewerDate: newerDate,
				URL:       sourceURL,
			}
			result.Inconsistencies = append(result.Inconsistencies, inconsistency)

			params := []any{donor, inconsistency.Older.String()}
			if !olderDate.IsZero() {
				params = append(params, olderDate.Format(time.DateOnly))
			}
			params = append(params, inconsistency.Newer.String(), newerDate.Format(time.DateOnly), sourceURL)
			e.tel.ReportWarning(report_engine_inconsistent, params...)
		}
	}

	e.tel.ReportDebug(
		report_engine_diff,
		newerDate.Format(time.DateOnly),
		len(result.Donations),
		len(result.Inconsistencies),
	)
	return result
}

// Observation is one snapshot along with when and where it was captured.
type Observation struct {
	Snapshot contributors.Snapshot
	Date     time.Time
	URL      string
}

// Chain diffs an implicit empty snapshot (dated origin) against the first observation,
// then every consecutive pair, concatenating the results in chronological order.
// Inconsistencies never stop the chain.
//
// Each step diffs against the last total seen for every donor, not only the donors
// listed on the previous page. A donor that drops off a page and comes back later is
// charged only for the growth since they were last listed. Drop-offs are reported.
func (e Engine) Chain(observations []Observation, origin time.Time) Result {
	var result Result

	lastSeen := make(map[string]decimal.Decimal)
	previous := Observation{Snapshot: contributors.Empty(), Date: origin}
	for i, current := range observations {
		e.tel.ReportDebug("chain step", i, current.URL)

		for _, donor := range previous.Snapshot.Donors() {
			if e.Ignored(donor) || current.Snapshot.Has(donor) {
				continue
			}
			e.tel.ReportWarning(
				report_engine_dropped,
				donor,
				previous.Snapshot.Amount(donor).String(),
				previous.URL,
				current.URL,
			)
		}

		result.Append(e.Diff(
			contributors.NewSnapshot(lastSeen), previous.Date,
			current.Snapshot, current.Date,
			current.URL,
		))

		for _, donor := range current.Snapshot.Donors() {
			lastSeen[donor] = current.Snapshot.Amount(donor)
		}
		previous = current
	}
	return result
}

// Totals sums donations per donor.
func Totals(donations []Donation) contributors.Snapshot {
	amounts := make(map[string]decimal.Decimal)
	for _, d := range donations {
		amounts[d.Donor] = amounts[d.Donor].Add(d.Amount)
	}
	return contributors.NewSnapshot(amounts)
}
