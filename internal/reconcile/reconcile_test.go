package reconcile

import (
	"fmt"
	"math/rand"
	"testing"
	"time"
	"topcontributors/internal/components/telemetry"
	"topcontributors/internal/contributors"
	"topcontributors/internal/cumulative"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var equalAmounts = cmp.Comparer(func(a, b decimal.Decimal) bool {
	return a.Equal(b)
})

func snap(amounts map[string]int64) contributors.Snapshot {
	converted := make(map[string]decimal.Decimal, len(amounts))
	for donor, amount := range amounts {
		converted[donor] = decimal.NewFromInt(amount)
	}
	return contributors.NewSnapshot(converted)
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newReconciler(rec *telemetry.Recorder, ignored ...string) Reconciler {
	return New(cumulative.NewEngine(ignored, rec), rec)
}

func TestLatest(t *testing.T) {
	rec := telemetry.NewRecorder()
	r := newReconciler(rec, "Open Philanthropy Project")

	known := snap(map[string]int64{
		"Alice":                     100,
		"Bob":                       500,
		"Dave":                      20,
		"Open Philanthropy Project": 1,
	})
	latest := cumulative.Observation{
		Snapshot: snap(map[string]int64{
			"Alice":                     250,
			"Bob":                       400,
			"Carol":                     30,
			"Open Philanthropy Project": 1000000,
		}),
		Date: day("2024-03-01"),
		URL:  "https://intelligence.org/topcontributors/",
	}

	res := r.Latest(known, latest)

	expected := []cumulative.Donation{
		{Donor: "Alice", Amount: decimal.NewFromInt(150), Date: day("2024-03-01"), URL: latest.URL},
		{Donor: "Carol", Amount: decimal.NewFromInt(30), Date: day("2024-03-01"), URL: latest.URL},
	}
	if diff := cmp.Diff(expected, res.Donations, equalAmounts); diff != "" {
		t.Fatal(diff)
	}

	// Dave fell off the page, Bob's record is larger than what is published
	require.Len(t, res.Inconsistencies, 1)
	require.Equal(t, "Bob", res.Inconsistencies[0].Donor)

	// ledger totals have no capture date, the warning must not invent one
	warnings := rec.Reports(telemetry.KindWarning)
	require.Len(t, warnings, 1)
	require.Equal(t, "cumulative: engine.inconsistent", warnings[0].ID)
	require.Equal(t, []any{"Bob", "500", "400", "2024-03-01", latest.URL}, warnings[0].Params)
	require.NotContains(t, warnings[0].Params, "0001-01-01")
}

func events() []cumulative.Donation {
	return []cumulative.Donation{
		{Donor: "Alice", Amount: decimal.NewFromInt(50), Date: day("2015-01-17"), URL: "one"},
		{Donor: "Bob", Amount: decimal.NewFromInt(10), Date: day("2015-01-17"), URL: "one"},
		{Donor: "Alice", Amount: decimal.NewFromInt(40), Date: day("2015-05-07"), URL: "two"},
		{Donor: "Alice", Amount: decimal.NewFromInt(30), Date: day("2016-01-15"), URL: "three"},
		{Donor: "Carol", Amount: decimal.NewFromInt(5), Date: day("2016-01-15"), URL: "three"},
	}
}

func TestNetNew(t *testing.T) {
	rec := telemetry.NewRecorder()
	r := newReconciler(rec)

	known := snap(map[string]int64{
		"Alice": 70,
		"Bob":   10,
		"Dave":  1000,
	})

	res := r.NetNew(events(), known)

	expected := []cumulative.Donation{
		{Donor: "Alice", Amount: decimal.NewFromInt(20), Date: day("2015-05-07"), URL: "two"},
		{Donor: "Alice", Amount: decimal.NewFromInt(30), Date: day("2016-01-15"), URL: "three"},
		{Donor: "Carol", Amount: decimal.NewFromInt(5), Date: day("2016-01-15"), URL: "three"},
	}
	if diff := cmp.Diff(expected, res.Donations, equalAmounts); diff != "" {
		t.Fatal(diff)
	}
	require.Empty(t, res.Inconsistencies)
}

func TestNetNewEmptyLedger(t *testing.T) {
	r := newReconciler(telemetry.NewRecorder())
	res := r.NetNew(events(), contributors.Empty())
	if diff := cmp.Diff(events(), res.Donations, equalAmounts); diff != "" {
		t.Fatal(diff)
	}
}

func TestNetNewLedgerExceedsWeb(t *testing.T) {
	rec := telemetry.NewRecorder()
	r := newReconciler(rec)

	res := r.NetNew(events(), snap(map[string]int64{"Alice": 200}))

	for _, d := range res.Donations {
		require.NotEqual(t, "Alice", d.Donor)
	}
	require.Len(t, res.Inconsistencies, 1)
	inconsistency := res.Inconsistencies[0]
	require.Equal(t, "Alice", inconsistency.Donor)
	require.Equal(t, "200", inconsistency.Older.String())
	require.Equal(t, "120", inconsistency.Newer.String())
	require.Equal(t, "three", inconsistency.URL)

	warnings := rec.Reports(telemetry.KindWarning)
	require.Len(t, warnings, 1)
	require.Equal(t, "reconcile: reconcile.inconsistent", warnings[0].ID)
}

func TestNetNewSkipsIgnored(t *testing.T) {
	r := newReconciler(telemetry.NewRecorder(), "Bob")
	res := r.NetNew(events(), contributors.Empty())
	for _, d := range res.Donations {
		require.NotEqual(t, "Bob", d.Donor)
	}
	require.Len(t, res.Donations, 4)
}

// The amount NetNew leaves for each donor is exactly what diffing the two
// totals yields.
func TestNetNewAgreesWithDiff(t *testing.T) {
	rec := telemetry.NewRecorder()
	engine := cumulative.NewEngine(nil, rec)
	r := New(engine, rec)
	random := rand.New(rand.NewSource(11))

	for round := 0; round < 100; round++ {
		var evs []cumulative.Donation
		known := make(map[string]int64)
		for i := 0; i < 20; i++ {
			donor := fmt.Sprintf("donor-%d", random.Intn(5))
			evs = append(evs, cumulative.Donation{
				Donor:  donor,
				Amount: decimal.NewFromInt(int64(1 + random.Intn(100))),
				Date:   day("2015-01-01").AddDate(0, 0, i),
			})
		}
		for d := 0; d < 5; d++ {
			if random.Intn(2) == 0 {
				known[fmt.Sprintf("donor-%d", d)] = int64(random.Intn(400))
			}
		}
		knownSnapshot := snap(known)

		res := r.NetNew(evs, knownSnapshot)
		web := cumulative.Totals(evs)
		direct := engine.Diff(knownSnapshot, time.Time{}, web, day("2016-01-01"), "")

		expected := cumulative.Totals(direct.Donations)
		got := cumulative.Totals(res.Donations)
		require.Equal(t, expected.Donors(), got.Donors())
		require.True(t, expected.Equal(got))
		for _, d := range res.Donations {
			require.True(t, d.Amount.IsPositive())
		}
		require.Len(t, res.Inconsistencies, len(direct.Inconsistencies))

		for i := 1; i < len(res.Donations); i++ {
			require.False(t, res.Donations[i].Date.Before(res.Donations[i-1].Date))
		}
	}
}

func TestSimilarNames(t *testing.T) {
	rec := telemetry.NewRecorder()
	r := newReconciler(rec, "Open Philanthropy Project")

	matches := r.SimilarNames(
		[]string{"Jaan Talinn", "Alice Smith", "Zebulon Q", "Open Philanthropy Project", "Marius van Voorden"},
		[]string{"Jaan Tallinn", "Alice Smith", "Marius van Voorden", "Open Philanthropy"},
		0.92,
	)

	require.Len(t, matches, 1)
	require.Equal(t, "Jaan Talinn", matches[0].Web)
	require.Equal(t, "Jaan Tallinn", matches[0].Known)
	require.GreaterOrEqual(t, matches[0].Similarity, 0.92)
	require.Len(t, rec.Reports(telemetry.KindWarning), 1)
}

func TestSimilarNamesEmptyLedger(t *testing.T) {
	r := newReconciler(telemetry.NewRecorder())
	require.Empty(t, r.SimilarNames([]string{"Alice"}, nil, 0.5))
}
