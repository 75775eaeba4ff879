package contributors

import (
	"context"
	"fmt"
	"io"
	"maps"
	"regexp"
	"strings"
	"topcontributors/internal/components/assert"
	"topcontributors/internal/components/telemetry"
	"topcontributors/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("topcontributors/contributors")

const (
	report_extractor_extract = "extractor.extract"
	report_extractor_donors  = "extractor.donors"
)

// DuplicateDonorError means one page listed the same (normalized) donor twice,
// which only happens when the page layout no longer matches what IsDonorTable expects.
type DuplicateDonorError struct {
	Name string
}

func (e *DuplicateDonorError) Error() string {
	return fmt.Sprintf("donor %q appears more than once in the same snapshot", e.Name)
}

// AmountError is returned when the amount cell of a donor row could not be parsed.
type AmountError struct {
	Donor string
	Raw   string
	Err   error
}

func (e *AmountError) Error() string {
	if e.Donor == "" {
		return fmt.Sprintf("malformed amount %q: %s", e.Raw, e.Err)
	}
	return fmt.Sprintf("malformed amount %q for donor %q: %s", e.Raw, e.Donor, e.Err)
}

func (e *AmountError) Unwrap() error {
	return e.Err
}

// Normalizer maps known mis-encoded or annotated donor names to their canonical form.
// The table is fixed at construction.
type Normalizer struct {
	table map[string]string
}

func NewNormalizer(table map[string]string) Normalizer {
	return Normalizer{table: maps.Clone(table)}
}

// Normalize returns the canonical form of name, names outside the table pass
// through unchanged.
func (n Normalizer) Normalize(name string) string {
	canonical, ok := n.table[name]
	if ok {
		return canonical
	}
	return name
}

func containsMarker(text string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// IsDonorTable reports whether table is the donor listing: its first data row must
// have exactly two cells, and the second one must contain a currency marker.
// Pages embed unrelated layout tables, those fail this check.
func IsDonorTable(table *goquery.Selection, markers []string) bool {
	row := htmlutil.FirstDataRow(table)
	if row.Length() == 0 {
		return false
	}
	cells := htmlutil.Cells(row)
	if cells.Length() != 2 {
		return false
	}
	return containsMarker(htmlutil.Text(cells.Eq(1)), markers)
}

// amountPattern is a plain non-negative decimal once markers, thousands
// separators and whitespace are gone. Exponents, digit separators and
// spelled out values such as NaN or Inf never appear on a contributors page.
var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount turns an amount cell like "$12,345.67" into 12345.67.
func ParseAmount(raw string, markers []string) (decimal.Decimal, error) {
	cleaned := raw
	for _, m := range markers {
		if m != "" {
			cleaned = strings.ReplaceAll(cleaned, m, "")
		}
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)

	if !amountPattern.MatchString(cleaned) {
		return decimal.Decimal{}, &AmountError{Raw: raw, Err: fmt.Errorf("not a plain decimal: %q", cleaned)}
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, &AmountError{Raw: raw, Err: err}
	}
	return amount, nil
}

// Extractor reads a Snapshot out of a contributors page.
type Extractor struct {
	normalizer Normalizer
	markers    []string
	tel        telemetry.API
}

func NewExtractor(normalizer Normalizer, markers []string, tel telemetry.API) Extractor {
	assert.NotNil(tel)
	if len(markers) == 0 {
		panic("expected at least one currency marker")
	}

	return Extractor{
		normalizer: normalizer,
		markers:    append([]string(nil), markers...),
		tel:        telemetry.NewScopedAPI("contributors", tel),
	}
}

func (e Extractor) ExtractHTML(ctx context.Context, r io.Reader) (Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		e.tel.ReportBroken(report_extractor_extract, fmt.Errorf("parse html: %w", err))
		return Snapshot{}, err
	}
	return e.Extract(ctx, doc)
}

// Extract collects every donor row of every table accepted by IsDonorTable.
// A repeated donor or an unparseable amount fails the whole page.
func (e Extractor) Extract(ctx context.Context, doc *goquery.Document) (Snapshot, error) {
	_, span := tracer.Start(ctx, "Extract")
	defer span.End()

	amounts := make(map[string]decimal.Decimal)
	var failure error

	doc.Find("table").EachWithBreak(func(tableIdx int, table *goquery.Selection) bool {
		if !IsDonorTable(table, e.markers) {
			e.tel.ReportDebug("skip table", tableIdx)
			return true
		}

		htmlutil.Rows(table).EachWithBreak(func(rowIdx int, row *goquery.Selection) bool {
			cells := htmlutil.Cells(row)
			if cells.Length() == 0 {
				return true
			}
			if cells.Length() != 2 {
				e.tel.ReportWarning(
					report_extractor_extract,
					fmt.Errorf("row has %d cells, expected 2", cells.Length()),
					tableIdx, rowIdx, htmlutil.Text(row),
				)
				return true
			}

			donor := e.normalizer.Normalize(htmlutil.Text(cells.Eq(0)))
			raw := htmlutil.Text(cells.Eq(1))

			amount, err := ParseAmount(raw, e.markers)
			if err != nil {
				amountErr := err.(*AmountError)
				amountErr.Donor = donor
				failure = amountErr
				return false
			}

			_, exists := amounts[donor]
			if exists {
				failure = &DuplicateDonorError{Name: donor}
				return false
			}
			amounts[donor] = amount
			return true
		})

		return failure == nil
	})

	if failure != nil {
		span.RecordError(failure)
		span.SetStatus(codes.Error, "extraction failed")
		e.tel.ReportBroken(report_extractor_extract, failure)
		return Snapshot{}, failure
	}

	span.SetAttributes(attribute.Int("donors", len(amounts)))
	e.tel.ReportCount(report_extractor_donors, int64(len(amounts)))

	return Snapshot{amounts: amounts}, nil
}
