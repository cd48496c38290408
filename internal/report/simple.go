package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/vulnmerge/internal/model"
)

// SimpleWriter outputs a human-readable text summary.
// It lists counts, file statistics and every skipped item, so a run that
// dropped rows is visible in the terminal. The output is plain ASCII.
type SimpleWriter struct {
	baseWriter

	// verbose adds the filtered findings to the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with the filtered findings.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(result *model.BatchResult) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, result)
	w.writeCounts(&sb, result)
	w.writeSeverity(&sb, result)
	w.writeFiles(&sb, result)
	w.writeWarnings(&sb, result)
	if w.verbose {
		w.writeFindings(&sb, result)
	}

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, result *model.BatchResult) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          VULNMERGE SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Run ID:        %s\n", result.RunID)
	fmt.Fprintf(sb, "Started:       %s\n", result.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:      %s\n", result.Duration())
	fmt.Fprintf(sb, "Minimum risk:  %s\n", minRiskText(result))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCounts(sb *strings.Builder, result *model.BatchResult) {
	fmt.Fprintf(sb, "Parsed records:    %d\n", result.TotalRecords)
	if result.Accumulated > 0 {
		fmt.Fprintf(sb, "Reloaded records:  %d\n", result.Accumulated)
	}
	fmt.Fprintf(sb, "Merged records:    %d\n", result.MergedCount)
	fmt.Fprintf(sb, "Filtered records:  %d\n", result.FilteredCount)
	if result.FilteredCount == 0 {
		fmt.Fprintf(sb, "                   (%s)\n", emptyFilteredText(result))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSeverity(sb *strings.Builder, result *model.BatchResult) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\nRISK SUMMARY (merged)\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")

	counts := model.CountBySeverity(result.Merged)
	for _, s := range model.AllSeverities() {
		if s == model.SeverityUnknown && counts[s] == 0 {
			continue
		}
		fmt.Fprintf(sb, "  %-9s %d\n", s.String()+":", counts[s])
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFiles(sb *strings.Builder, result *model.BatchResult) {
	sb.WriteString(strings.Repeat("-", 70))
	fmt.Fprintf(sb, "\nFILES (%d)\n", len(result.Files))
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")

	for _, f := range result.Files {
		fmt.Fprintf(sb, "  [%s] %s (%s)\n", f.Status, f.Path, f.Family.DisplayName())
		fmt.Fprintf(sb, "      rows=%d skipped=%d", f.Rows, f.SkippedRows)
		if f.Encoding != "" {
			fmt.Fprintf(sb, " encoding=%s", f.Encoding)
		}
		sb.WriteString("\n")
		if f.Error != "" {
			fmt.Fprintf(sb, "      %s\n", f.Error)
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeWarnings(sb *strings.Builder, result *model.BatchResult) {
	if len(result.Warnings) == 0 {
		return
	}
	sb.WriteString(strings.Repeat("-", 70))
	fmt.Fprintf(sb, "\nWARNINGS (%d)\n", len(result.Warnings))
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	for _, warn := range result.Warnings {
		fmt.Fprintf(sb, "  %s\n", warn)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFindings(sb *strings.Builder, result *model.BatchResult) {
	sb.WriteString(strings.Repeat("-", 70))
	fmt.Fprintf(sb, "\nFINDINGS (%d)\n", len(result.Filtered))
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	for i := range result.Filtered {
		r := &result.Filtered[i]
		fmt.Fprintf(sb, "  %4d. [%s] %s\n", r.SequenceID, r.Severity, singleLine(r.VulnerabilityName))
		fmt.Fprintf(sb, "        %s (%s)\n", target(r), r.Family.DisplayName())
		if r.CVEs.Len() > 0 {
			fmt.Fprintf(sb, "        %s\n", joinSet(r.CVEs, ", "))
		}
	}
	sb.WriteString("\n")
}
