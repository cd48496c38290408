package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// headerSeparators are removed from headers before comparison.
const headerSeparators = "_:：,，。.-"

// FoldToken folds Unicode case and width, trims, and collapses inner
// whitespace to single spaces.
func FoldToken(s string) string {
	s = width.Fold.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// FoldHeader is FoldToken with every whitespace and separator rune removed,
// so that "IP 地址", "ip_地址" and "ＩＰ地址" compare equal.
func FoldHeader(s string) string {
	s = FoldToken(s)
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || strings.ContainsRune(headerSeparators, r) {
			return -1
		}
		return r
	}, s)
}
