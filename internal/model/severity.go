package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity represents the ordinal risk level of a vulnerability record.
//
// Levels compare with < and >. SeverityUnknown sits below Info, so an
// unmapped label never outranks a real one.
type Severity int

const (
	// SeverityUnknown marks a record whose source label is not in the vocabulary.
	// It is never dropped silently; the record carries the UnknownSeverity flag.
	SeverityUnknown Severity = iota - 1

	// SeverityInfo indicates informational findings, such as an open port with
	// no known risk.
	SeverityInfo

	// SeverityLow indicates minor issues with limited impact.
	SeverityLow

	// SeverityMedium indicates moderate issues that warrant attention.
	SeverityMedium

	// SeverityHigh indicates serious issues.
	SeverityHigh

	// SeverityCritical indicates issues that require immediate attention.
	SeverityCritical
)

// AllSeverities lists the known levels from the highest to the lowest.
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo, SeverityUnknown}
}

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Label returns the canonical label written into reports.
func (s Severity) Label() string {
	switch s {
	case SeverityInfo:
		return "Info"
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	case SeverityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Valid reports whether s is one of the declared levels.
func (s Severity) Valid() bool {
	return s >= SeverityUnknown && s <= SeverityCritical
}

// ParseSeverityLabel converts a canonical label (as returned by Label or
// String) back into a Severity. Matching is case-insensitive.
func ParseSeverityLabel(label string) (Severity, error) {
	want := strings.TrimSpace(label)
	for _, s := range AllSeverities() {
		if strings.EqualFold(want, s.Label()) {
			return s, nil
		}
	}
	return SeverityUnknown, fmt.Errorf("unknown severity label %q", label)
}

// MarshalJSON writes the severity as its canonical label.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Label())
}

// UnmarshalJSON accepts either a canonical label or the ordinal number.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		parsed, err := ParseSeverityLabel(label)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("severity must be a label or a number: %w", err)
	}
	if !Severity(n).Valid() {
		return fmt.Errorf("severity %d out of range", n)
	}
	*s = Severity(n)
	return nil
}

// Vocabulary maps source risk tokens to severity levels.
// Keys are stored as written; lookups fold case and width at the consumer.
type Vocabulary map[string]Severity

// Clone returns an independent copy of v.
func (v Vocabulary) Clone() Vocabulary {
	out := make(Vocabulary, len(v))
	for token, s := range v {
		out[token] = s
	}
	return out
}

// Merge adds the tokens of other to v, overriding existing tokens.
func (v Vocabulary) Merge(other Vocabulary) {
	for token, s := range other {
		v[token] = s
	}
}

// SeverityCounts holds the number of records per level.
type SeverityCounts map[Severity]int

// CountBySeverity counts records per severity level.
func CountBySeverity(records []Record) SeverityCounts {
	counts := make(SeverityCounts, len(AllSeverities()))
	for _, r := range records {
		counts[r.Severity]++
	}
	return counts
}

// Total returns the sum of all counts.
func (c SeverityCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
