package vocab

import (
	"cmp"
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Matcher is the compiled form of a Table as it is persisted. Pattern is
// empty when the table is.
type Matcher struct {
	Pattern string `json:"pattern,omitempty"`
	Lookup  Table  `json:"lookup"`
}

// HasPattern reports whether there is anything to match.
func (m Matcher) HasPattern() bool { return m.Pattern != "" }

// Compile builds the alternation pattern for t. Longer meanings come first
// so "one hundred" is not shadowed by "one".
func Compile(t Table) Matcher {
	if t == nil {
		t = Table{}
	}
	return Matcher{Pattern: Pattern(slices.Collect(maps.Keys(t))), Lookup: t}
}

// Pattern returns `\b(k1|k2|...)\b` with keys escaped and sorted longest
// first, or "" when there are no keys.
func Pattern(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	sorted := slices.Clone(keys)
	slices.SortFunc(sorted, func(a, b string) int {
		if c := cmp.Compare(utf8.RuneCountInString(b), utf8.RuneCountInString(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	for i, k := range sorted {
		sorted[i] = regexp.QuoteMeta(k)
	}
	return `\b(` + strings.Join(sorted, "|") + `)\b`
}
