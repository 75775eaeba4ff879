package contributors

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// Snapshot maps each donor to the all-time total published for them at one
// point in time. It is never modified after construction.
type Snapshot struct {
	amounts map[string]decimal.Decimal
}

// NewSnapshot copies amounts into a new Snapshot.
func NewSnapshot(amounts map[string]decimal.Decimal) Snapshot {
	return Snapshot{amounts: maps.Clone(amounts)}
}

// Empty is the snapshot that precedes every real capture.
func Empty() Snapshot {
	return Snapshot{}
}

func (s Snapshot) Get(donor string) (decimal.Decimal, bool) {
	amount, ok := s.amounts[donor]
	return amount, ok
}

// Amount returns the cumulative amount of donor, zero when donor is not listed.
func (s Snapshot) Amount(donor string) decimal.Decimal {
	amount, ok := s.amounts[donor]
	if !ok {
		return decimal.Zero
	}
	return amount
}

func (s Snapshot) Has(donor string) bool {
	_, ok := s.amounts[donor]
	return ok
}

// Donors returns every donor in lexicographic order.
func (s Snapshot) Donors() []string {
	donors := make([]string, 0, len(s.amounts))
	for donor := range s.amounts {
		donors = append(donors, donor)
	}
	slices.Sort(donors)
	return donors
}

func (s Snapshot) Len() int {
	return len(s.amounts)
}

func (s Snapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, donor := range s.Donors() {
		total = total.Add(s.amounts[donor])
	}
	return total
}

// Equal reports whether both snapshots list the same donors with numerically
// equal amounts, regardless of how many decimal places each amount carries.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.amounts) != len(other.amounts) {
		return false
	}
	for donor, amount := range s.amounts {
		theirs, ok := other.amounts[donor]
		if !ok || !amount.Equal(theirs) {
			return false
		}
	}
	return true
}
