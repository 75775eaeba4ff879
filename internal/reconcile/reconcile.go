// Package reconcile removes what the ledger already knows about from the
// donations inferred off the web.
package reconcile

import (
	"slices"
	"time"
	"topcontributors/internal/components/assert"
	"topcontributors/internal/components/telemetry"
	"topcontributors/internal/contributors"
	"topcontributors/internal/cumulative"

	"github.com/antzucaro/matchr"
	"github.com/shopspring/decimal"
)

const (
	report_reconcile_inconsistent = "reconcile.inconsistent"
	report_reconcile_similar_name = "reconcile.similar-name"
)

type Reconciler struct {
	engine cumulative.Engine
	tel    telemetry.API
}

func New(engine cumulative.Engine, tel telemetry.API) Reconciler {
	assert.NotNil(tel)
	return Reconciler{
		engine: engine,
		tel:    telemetry.NewScopedAPI("reconcile", tel),
	}
}

// Latest diffs the per donor totals on record against the latest published
// snapshot. A donor whose recorded total exceeds the published one is returned
// as an inconsistency. Ledger totals carry no capture date.
func (r Reconciler) Latest(known contributors.Snapshot, latest cumulative.Observation) cumulative.Result {
	return r.engine.Diff(known, time.Time{}, latest.Snapshot, latest.Date, latest.URL)
}

// NetNew drops the part of every donor's web history that the ledger already
// accounts for. The recorded total is consumed against the donor's inferred
// donations earliest first: fully covered donations are dropped, the one that
// straddles the recorded total keeps only its uncovered remainder and later
// ones pass through. events must be in chronological order, the result keeps it.
func (r Reconciler) NetNew(events []cumulative.Donation, known contributors.Snapshot) cumulative.Result {
	remaining := make(map[string]decimal.Decimal)
	webTotals := make(map[string]decimal.Decimal)
	last := make(map[string]cumulative.Donation)

	var result cumulative.Result
	for _, event := range events {
		if r.engine.Ignored(event.Donor) {
			continue
		}
		webTotals[event.Donor] = webTotals[event.Donor].Add(event.Amount)
		last[event.Donor] = event

		left, seen := remaining[event.Donor]
		if !seen {
			left = known.Amount(event.Donor)
		}

		if event.Amount.Sub(left).GreaterThan(cumulative.Epsilon) {
			if left.IsPositive() {
				event.Amount = event.Amount.Sub(left)
			}
			result.Donations = append(result.Donations, event)
			left = decimal.Zero
		} else {
			left = left.Sub(event.Amount)
		}
		remaining[event.Donor] = left
	}

	donors := make([]string, 0, len(webTotals))
	for donor := range webTotals {
		donors = append(donors, donor)
	}
	slices.Sort(donors)

	for _, donor := range donors {
		recorded := known.Amount(donor)
		if recorded.Sub(webTotals[donor]).LessThanOrEqual(cumulative.Epsilon) {
			continue
		}
		inconsistency := cumulative.Inconsistency{
			Donor:     donor,
			Older:     recorded,
			Newer:     webTotals[donor],
			NewerDate: last[donor].Date,
			URL:       last[donor].URL,
		}
		result.Inconsistencies = append(result.Inconsistencies, inconsistency)
		r.tel.ReportWarning(
			report_reconcile_inconsistent,
			"recorded total exceeds published total",
			donor, recorded.String(), webTotals[donor].String(),
		)
	}

	return result
}

type NameMatch struct {
	Web        string
	Known      string
	Similarity float64
}

// SimilarNames pairs every web donor missing from the ledger with the most
// similar ledger donor, keeping pairs at or above threshold. These usually
// mean the normalization table is missing an entry.
func (r Reconciler) SimilarNames(web, known []string, threshold float64) []NameMatch {
	knownSet := make(map[string]struct{}, len(known))
	for _, name := range known {
		knownSet[name] = struct{}{}
	}

	sortedWeb := slices.Clone(web)
	slices.Sort(sortedWeb)

	var out []NameMatch
	for _, left := range sortedWeb {
		if _, ok := knownSet[left]; ok {
			continue
		}
		if r.engine.Ignored(left) {
			continue
		}

		mostSimilarity := 0.0
		mostSimilar := ""
		for _, right := range known {
			similarity := matchr.JaroWinkler(left, right, false)
			if similarity > mostSimilarity {
				mostSimilarity = similarity
				mostSimilar = right
			}
		}
		if mostSimilar == "" || mostSimilarity < threshold {
			continue
		}

		out = append(out, NameMatch{
			Web:        left,
			Known:      mostSimilar,
			Similarity: mostSimilarity,
		})
		r.tel.ReportWarning(
			report_reconcile_similar_name,
			"web donor is missing from the ledger but resembles a recorded donor",
			left, mostSimilar, mostSimilarity,
		)
	}
	return out
}
