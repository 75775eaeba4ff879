// Package sqlgen renders inferred donations as insert statements for the
// donations table.
package sqlgen

import "strings"

var quoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`'`, `''`,
	"\n", `\n`,
)

// Quote renders s as a MySQL string literal. The empty string becomes NULL.
func Quote(s string) string {
	if s == "" {
		return "NULL"
	}
	return "'" + quoteReplacer.Replace(s) + "'"
}
