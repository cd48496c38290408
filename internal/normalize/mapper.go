package normalize

import (
	"slices"
	"strings"
	"unicode"

	"github.com/nao1215/vulnmerge/internal/config"
	"github.com/nao1215/vulnmerge/internal/model"
)

type rule struct {
	field    model.Field
	synonyms []string
	// words holds the word split of each Latin synonym and is nil for
	// synonyms that contain other scripts.
	words [][]string
	fuzzy bool
}

// ColumnMapper binds the headers of a table to canonical fields.
type ColumnMapper struct {
	rules []rule
}

// NewColumnMapper builds a mapper from a column table. Synonyms are folded
// once here so Map only compares prepared strings.
func NewColumnMapper(table config.ColumnTable) *ColumnMapper {
	m := &ColumnMapper{rules: make([]rule, 0, len(table))}
	for _, r := range table {
		nr := rule{field: r.Field, fuzzy: r.Fuzzy}
		for _, s := range r.Synonyms {
			f := FoldHeader(s)
			if f == "" {
				continue
			}
			nr.synonyms = append(nr.synonyms, f)
			if isLatin(f) {
				nr.words = append(nr.words, headerWords(s))
			} else {
				nr.words = append(nr.words, nil)
			}
		}
		m.rules = append(m.rules, nr)
	}
	return m
}

// Binding is the result of mapping one header row.
type Binding struct {
	headers []string
	fields  map[model.Field]int
	order   []model.Field
}

// Map binds headers to fields in two passes. The first pass looks for exact
// matches; for every field in table order, its synonyms are tried in order and
// the first unclaimed header equal to a synonym wins. The second pass only
// considers fuzzy fields that are still unbound and accepts a header that
// contains a synonym. A Latin synonym must appear there as whole words, so
// "port" matches "Service Port" but not "Report Date". A header is claimed by
// at most one field.
func (m *ColumnMapper) Map(headers []string) (Binding, error) {
	folded := make([]string, len(headers))
	words := make([][]string, len(headers))
	for i, h := range headers {
		folded[i] = FoldHeader(h)
		words[i] = headerWords(h)
	}

	b := Binding{headers: headers, fields: make(map[model.Field]int)}
	claimed := make([]bool, len(headers))

	bind := func(r rule, match func(r rule, header, synonym int) bool) {
		if _, done := b.fields[r.field]; done {
			return
		}
		for s := range r.synonyms {
			for i, h := range folded {
				if claimed[i] || h == "" || !match(r, i, s) {
					continue
				}
				claimed[i] = true
				b.fields[r.field] = i
				b.order = append(b.order, r.field)
				return
			}
		}
	}

	exact := func(r rule, h, s int) bool { return folded[h] == r.synonyms[s] }
	contains := func(r rule, h, s int) bool {
		if r.words[s] == nil {
			return strings.Contains(folded[h], r.synonyms[s])
		}
		return containsWords(words[h], r.words[s])
	}
	for _, r := range m.rules {
		bind(r, exact)
	}
	for _, r := range m.rules {
		if r.fuzzy {
			bind(r, contains)
		}
	}

	if len(b.fields) == 0 {
		return Binding{}, &SchemaMappingError{Headers: headers}
	}
	return b, nil
}

func isLatin(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// headerWords splits a folded header into words. Letters and digits form
// words, ASCII and other scripts never share one, and everything else
// separates them: "IP地址(内网)" is ip, 地址, 内网.
func headerWords(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		latin bool
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range FoldToken(s) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if l := r <= unicode.MaxASCII; l != latin {
			flush()
			latin = l
		}
		cur.WriteRune(r)
	}
	flush()
	return out
}

// containsWords reports whether want occurs in have as a contiguous run.
func containsWords(have, want []string) bool {
	if len(want) == 0 {
		return false
	}
	for i := 0; i+len(want) <= len(have); i++ {
		if slices.Equal(have[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

// Header returns the source header bound to f.
func (b Binding) Header(f model.Field) (string, bool) {
	i, ok := b.fields[f]
	if !ok {
		return "", false
	}
	return b.headers[i], true
}

// Fields returns the bound fields in the order they were bound.
func (b Binding) Fields() []model.Field {
	return append([]model.Field(nil), b.order...)
}

// Passthrough returns the headers that no field claimed.
func (b Binding) Passthrough() []string {
	used := make(map[int]bool, len(b.fields))
	for _, i := range b.fields {
		used[i] = true
	}
	var out []string
	for i, h := range b.headers {
		if !used[i] && strings.TrimSpace(h) != "" {
			out = append(out, h)
		}
	}
	return out
}

// Apply projects a raw record through the binding.
func (b Binding) Apply(raw model.RawRecord) model.MappedRow {
	row := model.MappedRow{
		Values: make(map[model.Field]string, len(b.fields)),
		Raw:    raw,
	}
	for f, i := range b.fields {
		if v := strings.TrimSpace(raw.Fields[b.headers[i]]); v != "" {
			row.Values[f] = v
		}
	}
	for _, h := range b.Passthrough() {
		if v := strings.TrimSpace(raw.Fields[h]); v != "" {
			if row.Passthrough == nil {
				row.Passthrough = make(map[string]string)
			}
			row.Passthrough[h] = v
		}
	}
	return row
}
