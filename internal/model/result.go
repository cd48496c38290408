package model

import (
	"fmt"
	"time"
)

// WarningKind classifies a recovered error.
type WarningKind string

const (
	// WarningEncoding means no candidate encoding could decode the file.
	WarningEncoding WarningKind = "encoding"
	// WarningSchema means no column of a table could be bound to a field.
	WarningSchema WarningKind = "schema-mapping"
	// WarningParseRow means one row or entry was malformed and skipped.
	WarningParseRow WarningKind = "parse-row"
	// WarningParseFile means the document structure was unreadable.
	WarningParseFile WarningKind = "parse-file"
	// WarningMergeAmbiguity means records sharing a key were kept apart.
	WarningMergeAmbiguity WarningKind = "merge-ambiguity"
	// WarningUnknownSeverity means a risk label was not in the vocabulary.
	WarningUnknownSeverity WarningKind = "unknown-severity"
	// WarningMissingReference means a plugin id had no reference entry.
	WarningMissingReference WarningKind = "missing-reference"
	// WarningHistory means the run could not be stored in or loaded from
	// the history database.
	WarningHistory WarningKind = "history"
)

// Warning is a non-fatal problem reported in the batch result.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	File    string      `json:"file,omitempty"`
	Row     int         `json:"row,omitempty"`
	Message string      `json:"message"`
}

// String formats the warning for the text summary.
func (w Warning) String() string {
	switch {
	case w.File != "" && w.Row > 0:
		return fmt.Sprintf("[%s] %s:%d: %s", w.Kind, w.File, w.Row, w.Message)
	case w.File != "":
		return fmt.Sprintf("[%s] %s: %s", w.Kind, w.File, w.Message)
	default:
		return fmt.Sprintf("[%s] %s", w.Kind, w.Message)
	}
}

// FileStatus is the outcome of ingesting one input file.
type FileStatus string

const (
	// FileParsed means at least one table of the file was mapped.
	FileParsed FileStatus = "parsed"
	// FilePlaceholder means the file was read but no column could be mapped,
	// so it contributes an empty result.
	FilePlaceholder FileStatus = "placeholder"
	// FileSkipped means the file could not be decoded or parsed.
	FileSkipped FileStatus = "skipped"
)

// FileStat summarizes the ingestion of one input file.
type FileStat struct {
	Path        string     `json:"path"`
	Family      Family     `json:"family"`
	Encoding    string     `json:"encoding,omitempty"`
	Status      FileStatus `json:"status"`
	Rows        int        `json:"rows"`
	SkippedRows int        `json:"skipped_rows"`
	Error       string     `json:"error,omitempty"`
}

// HostCount is the number of findings reported for one host.
type HostCount struct {
	Host  string `json:"host"`
	Count int    `json:"count"`
}

// PortRuns is the number of distinct scan runs that saw a port open.
type PortRuns struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
	Runs int    `json:"runs"`
}

// BatchResult is everything one run produced.
type BatchResult struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// MinRisk is the label of the threshold used, empty when unset.
	MinRisk string `json:"min_risk,omitempty"`

	// Merged holds every merged record, assembled and numbered.
	Merged []Record `json:"merged"`
	// Filtered holds the records that pass the threshold, assembled and numbered.
	Filtered []Record `json:"filtered"`

	TotalRecords  int `json:"total_records"`
	MergedCount   int `json:"merged_count"`
	FilteredCount int `json:"filtered_count"`

	// Accumulated is the number of records reloaded from the previous run.
	Accumulated int `json:"accumulated,omitempty"`

	Files    []FileStat  `json:"files"`
	Warnings []Warning   `json:"warnings,omitempty"`
	Hosts    []HostCount `json:"hosts,omitempty"`
	Ports    []PortRuns  `json:"ports,omitempty"`
}

// ByFamily returns the records of recs that belong to f.
func ByFamily(recs []Record, f Family) []Record {
	var out []Record
	for _, r := range recs {
		if r.Family == f {
			out = append(out, r)
		}
	}
	return out
}

// Families returns the families that appear in the merged records, in
// canonical order.
func (b *BatchResult) Families() []Family {
	seen := make(map[Family]bool)
	for _, r := range b.Merged {
		seen[r.Family] = true
	}
	var out []Family
	for _, f := range AllFamilies() {
		if seen[f] {
			out = append(out, f)
		}
	}
	return out
}

// Duration returns how long the run took.
func (b *BatchResult) Duration() time.Duration {
	return b.FinishedAt.Sub(b.StartedAt)
}
