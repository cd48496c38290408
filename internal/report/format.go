package report

import (
	"strings"
	"time"

	"github.com/nao1215/vulnmerge/internal/model"
)

// timeLayout is used for every timestamp shown in reports.
const timeLayout = "2006-01-02 15:04:05"

func joinSet(s model.StringSet, sep string) string {
	return strings.Join(s.Sorted(), sep)
}

// target returns where a finding was seen: the URL for the web family,
// otherwise the address with its port.
func target(r *model.Record) string {
	if r.URL != nil && (r.Family.URLKeyed() || r.IP == nil) {
		return *r.URL
	}
	addr := r.Address()
	if p := r.PortString(); p != "" {
		if addr == "" {
			return p
		}
		return addr + ":" + p
	}
	return addr
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}

func flagsCell(f model.Flags) string {
	var parts []string
	if f.UnknownSeverity {
		parts = append(parts, "unknown-severity")
	}
	if f.MergeAmbiguity {
		parts = append(parts, "merge-ambiguity")
	}
	return strings.Join(parts, ", ")
}

// minRiskText describes the threshold of a result.
func minRiskText(result *model.BatchResult) string {
	if result.MinRisk == "" {
		return "none"
	}
	return result.MinRisk
}

// emptyFilteredText is the hint written where the filtered view is empty,
// so an empty report is not mistaken for a failed run.
func emptyFilteredText(result *model.BatchResult) string {
	if result.MinRisk == "" {
		return "No findings"
	}
	return "No findings at or above " + result.MinRisk + " risk"
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// singleLine collapses line breaks so a value fits in a table cell.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
