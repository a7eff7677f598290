// Package diff renders the difference between two texts or two values for
// people to read.
package diff

import (
	"strings"

	"github.com/k0kubun/pp/v3"
	"github.com/kylelemons/godebug/diff"
)

// Text returns a line diff turning before into after, or "" when they are
// equal. Every line carries a marker: '-' removed, '+' added, ' ' kept.
// Whitespace at the end of a line is made visible, since that is usually
// what changed.
func Text(before, after string) string {
	if before == after {
		return ""
	}
	return diff.Diff(visible(before), visible(after))
}

func visible(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		trimmed := strings.TrimRight(l, " \t")
		if trimmed != l {
			tail := strings.NewReplacer(" ", "·", "\t", "→").Replace(l[len(trimmed):])
			lines[i] = trimmed + tail
		}
	}
	return strings.Join(lines, "\n")
}

// Values pretty prints the exported fields of want and got and diffs them,
// returning "" when they print the same.
func Values[T any](want, got T) string {
	printer := pp.New()
	printer.SetExportedOnly(true)
	printer.SetColoringEnabled(false)

	g, w := printer.Sprint(got), printer.Sprint(want)
	if g == w {
		return ""
	}
	return "\n(-got +want)\n" + diff.Diff(g, w)
}
