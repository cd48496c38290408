package merge

import "github.com/nao1215/vulnmerge/internal/model"

// SeverityChange is a record whose severity differs between two runs.
type SeverityChange struct {
	Record model.Record
	Before model.Severity
}

// Comparison is the difference between two sets of records.
type Comparison struct {
	New      []model.Record
	Resolved []model.Record
	Changed  []SeverityChange
}

// IsEmpty reports whether nothing changed.
func (c Comparison) IsEmpty() bool {
	return len(c.New) == 0 && len(c.Resolved) == 0 && len(c.Changed) == 0
}

// Diff compares records of an older and a newer run by fingerprint. The
// slices of the result are in assembly order.
func Diff(older, newer []model.Record) Comparison {
	before := make(map[string]model.Record, len(older))
	for _, r := range older {
		before[Fingerprint(&r)] = r
	}
	after := make(map[string]bool, len(newer))

	var c Comparison
	for _, r := range newer {
		fp := Fingerprint(&r)
		after[fp] = true
		old, ok := before[fp]
		switch {
		case !ok:
			c.New = append(c.New, r)
		case old.Severity != r.Severity:
			c.Changed = append(c.Changed, SeverityChange{Record: r, Before: old.Severity})
		}
	}
	for _, r := range older {
		if !after[Fingerprint(&r)] {
			c.Resolved = append(c.Resolved, r)
		}
	}

	c.New = Assemble(c.New)
	c.Resolved = Assemble(c.Resolved)
	return c
}
