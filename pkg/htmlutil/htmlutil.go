package htmlutil

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// GetText concatenates every text node under node, the same way a browser's
// textContent would.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// Text returns the text of every node in sel with surrounding whitespace trimmed.
func Text(sel *goquery.Selection) string {
	var out strings.Builder
	for _, n := range sel.Nodes {
		out.WriteString(GetText(n))
	}
	return strings.TrimSpace(out.String())
}

// Rows returns the rows that belong to table itself, rows of tables nested inside
// one of its cells are left out.
func Rows(table *goquery.Selection) *goquery.Selection {
	return table.Find("tr").FilterFunction(func(_ int, row *goquery.Selection) bool {
		return row.Closest("table").IsSelection(table)
	})
}

// Cells returns the data cells of a single row.
func Cells(row *goquery.Selection) *goquery.Selection {
	return row.ChildrenFiltered("td")
}

// FirstDataRow returns the first row of table that has at least one data cell,
// header rows made only of <th> are skipped. The returned selection is empty when
// there is no such row.
func FirstDataRow(table *goquery.Selection) *goquery.Selection {
	return Rows(table).FilterFunction(func(_ int, row *goquery.Selection) bool {
		return Cells(row).Length() > 0
	}).First()
}
