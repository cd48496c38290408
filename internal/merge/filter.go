package merge

import (
	"strings"

	"github.com/nao1215/vulnmerge/internal/model"
)

// Threshold is an optional minimum severity. The zero value is unset and
// keeps every record.
type Threshold struct {
	level model.Severity
	set   bool
}

// AtLeast returns a threshold at level s.
func AtLeast(s model.Severity) Threshold {
	return Threshold{level: s, set: true}
}

// ParseThreshold reads a level label. An empty string is an unset threshold.
func ParseThreshold(s string) (Threshold, error) {
	if strings.TrimSpace(s) == "" {
		return Threshold{}, nil
	}
	level, err := model.ParseSeverityLabel(s)
	if err != nil {
		return Threshold{}, err
	}
	return AtLeast(level), nil
}

// IsSet reports whether the threshold filters anything.
func (t Threshold) IsSet() bool {
	return t.set
}

// Level returns the threshold level and whether it is set.
func (t Threshold) Level() (model.Severity, bool) {
	return t.level, t.set
}

// String returns the level label, or "" when unset.
func (t Threshold) String() string {
	if !t.set {
		return ""
	}
	return t.level.Label()
}

// Allows reports whether a record of severity s passes. Unknown records
// only pass when the threshold itself is Unknown.
func (t Threshold) Allows(s model.Severity) bool {
	if !t.set {
		return true
	}
	if s == model.SeverityUnknown {
		return t.level == model.SeverityUnknown
	}
	return s >= t.level
}

// Filter returns the records that pass t. Records are copied unchanged.
func Filter(records []model.Record, t Threshold) []model.Record {
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if t.Allows(r.Severity) {
			out = append(out, r)
		}
	}
	return out
}
