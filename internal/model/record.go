package model

import (
	"strconv"
	"time"
)

// Field is the name of a canonical record field that a source column can be
// bound to.
type Field string

// Canonical fields. Not every family uses every field.
const (
	FieldIP          Field = "ip"
	FieldURL         Field = "url"
	FieldTarget      Field = "target"
	FieldPort        Field = "port"
	FieldProtocol    Field = "protocol"
	FieldName        Field = "vulnerability_name"
	FieldRisk        Field = "risk"
	FieldSynopsis    Field = "synopsis"
	FieldDescription Field = "description"
	FieldRemediation Field = "remediation"
	FieldCVE         Field = "cve"
	FieldEvidence    Field = "evidence"
	FieldRequest     Field = "request"
	FieldPluginID    Field = "plugin_id"
	FieldService     Field = "service"
	FieldState       Field = "state"
	FieldRemark      Field = "remark"
	FieldFirstSeen   Field = "first_seen"
	FieldLastSeen    Field = "last_seen"
)

// RawRecord is one source row or markup entry before any mapping.
type RawRecord struct {
	// Fields holds the cell values keyed by the source header, as written.
	Fields map[string]string
	// OriginFile is the path of the document the record came from.
	OriginFile string
	// Family is the scanner family of the document.
	Family Family
	// Row is the position of the record in its document, starting at 1.
	Row int
	// RunID identifies the scan run. Empty when the format has no such notion.
	RunID string
	// Timestamp is set when the markup carries a scan time.
	Timestamp *time.Time
}

// MappedRow is a RawRecord whose headers have been bound to canonical fields.
// Adapters refine it before it is turned into a Record.
type MappedRow struct {
	Values      map[Field]string
	Passthrough map[string]string
	// Extra holds evidence lines added by an adapter while refining.
	Extra []string
	Raw   RawRecord
}

// Get returns the value bound to f, or "".
func (m *MappedRow) Get(f Field) string {
	return m.Values[f]
}

// Set binds v to f.
func (m *MappedRow) Set(f Field, v string) {
	if m.Values == nil {
		m.Values = make(map[Field]string)
	}
	m.Values[f] = v
}

// Position locates the first source row that contributed to a record.
// Merging uses it to pick description and remediation deterministically.
type Position struct {
	File string `json:"file"`
	Row  int    `json:"row"`
}

// Before reports whether p sorts before o (file path, then row).
func (p Position) Before(o Position) bool {
	if p.File != o.File {
		return p.File < o.File
	}
	return p.Row < o.Row
}

// Flags are non-fatal conditions attached to a record.
type Flags struct {
	// UnknownSeverity is set when the risk label was not in the vocabulary.
	UnknownSeverity bool `json:"unknown_severity,omitempty"`
	// MergeAmbiguity is set when records sharing a merge key disagreed on the
	// protocol (host families) or the IP (web family) and were kept apart.
	MergeAmbiguity bool `json:"merge_ambiguity,omitempty"`
}

// Record is the canonical vulnerability record.
type Record struct {
	// SequenceID is assigned by the report assembler, 1..N. Zero before that.
	SequenceID int `json:"sequence_id,omitempty"`

	Family Family `json:"family"`

	// IP, URL and Port are nil when the source did not provide them.
	IP       *string  `json:"ip,omitempty"`
	URL      *string  `json:"url,omitempty"`
	Port     *int     `json:"port,omitempty"`
	Protocol Protocol `json:"protocol,omitempty"`

	VulnerabilityName string   `json:"vulnerability_name"`
	Severity          Severity `json:"severity"`
	Description       string   `json:"description,omitempty"`
	Remediation       string   `json:"remediation,omitempty"`

	CVEs        StringSet `json:"cves"`
	Evidence    StringSet `json:"evidence"`
	OriginFiles StringSet `json:"origin_files"`
	ScanRuns    StringSet `json:"scan_runs"`

	// Occurrences is the number of distinct scan runs that reported the record.
	Occurrences int `json:"occurrences"`

	Service  string `json:"service,omitempty"`
	PluginID string `json:"plugin_id,omitempty"`

	FirstSeen *time.Time `json:"first_seen,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`

	Passthrough map[string]string `json:"passthrough,omitempty"`
	Flags       Flags             `json:"flags"`
	Position    Position          `json:"position"`
}

// Address returns the IP if present, otherwise the URL, otherwise "".
func (r *Record) Address() string {
	if r.IP != nil {
		return *r.IP
	}
	if r.URL != nil {
		return *r.URL
	}
	return ""
}

// PortString returns "443/tcp", "443" or "" depending on what is known.
func (r *Record) PortString() string {
	if r.Port == nil {
		return ""
	}
	s := strconv.Itoa(*r.Port)
	if p := r.Protocol.String(); p != "" {
		s += "/" + p
	}
	return s
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	out.IP = cloneString(r.IP)
	out.URL = cloneString(r.URL)
	if r.Port != nil {
		p := *r.Port
		out.Port = &p
	}
	out.CVEs = r.CVEs.Clone()
	out.Evidence = r.Evidence.Clone()
	out.OriginFiles = r.OriginFiles.Clone()
	out.ScanRuns = r.ScanRuns.Clone()
	out.FirstSeen = cloneTime(r.FirstSeen)
	out.LastSeen = cloneTime(r.LastSeen)
	if r.Passthrough != nil {
		out.Passthrough = make(map[string]string, len(r.Passthrough))
		for k, v := range r.Passthrough {
			out.Passthrough[k] = v
		}
	}
	return out
}

// OptionalString returns nil for an empty string and a pointer to s otherwise.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// OptionalInt returns a pointer to n.
func OptionalInt(n int) *int {
	return &n
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
