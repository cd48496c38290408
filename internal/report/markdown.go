package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/vulnmerge/internal/model"
)

// MarkdownWriter outputs results in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter

	// maxFindings limits the rows of the findings table. Zero means no limit.
	maxFindings int
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithMaxFindings limits the number of findings listed.
func WithMaxFindings(n int) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.maxFindings = n
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the result in Markdown format.
func (w *MarkdownWriter) Write(result *model.BatchResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, result)
	w.writeSummary(md, result)
	w.writeFindings(md, result)
	w.writeHosts(md, result)
	w.writeFiles(md, result)
	w.writeWarnings(md, result)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, result *model.BatchResult) {
	md.H1("Vulnerability Merge Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + result.RunID + "`"},
			{"Started", result.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", result.Duration().String()},
			{"Minimum Risk", minRiskText(result)},
			{"Parsed Records", strconv.Itoa(result.TotalRecords)},
			{"Merged Records", strconv.Itoa(result.MergedCount)},
			{"Filtered Records", strconv.Itoa(result.FilteredCount)},
		},
	})
	md.PlainText("")
}

// writeSummary writes the severity summary of the merged records.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, result *model.BatchResult) {
	md.H2("Risk Summary")
	md.PlainText("")

	counts := model.CountBySeverity(result.Merged)
	rows := [][]string{
		{"🔴 Critical", strconv.Itoa(counts[model.SeverityCritical])},
		{"🟠 High", strconv.Itoa(counts[model.SeverityHigh])},
		{"🟡 Medium", strconv.Itoa(counts[model.SeverityMedium])},
		{"🔵 Low", strconv.Itoa(counts[model.SeverityLow])},
		{"⚪ Info", strconv.Itoa(counts[model.SeverityInfo])},
	}
	if n := counts[model.SeverityUnknown]; n > 0 {
		rows = append(rows, []string{"❔ Unknown", strconv.Itoa(n)})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(counts.Total()) + "**"})
	md.Table(markdown.TableSet{Header: []string{"Risk", "Count"}, Rows: rows})
	md.PlainText("")

	if counts.Total() > 0 {
		w.writePieChart(md, counts)
	}
	w.writeAlert(md, counts)
}

// writePieChart writes a mermaid pie chart for the risk distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts model.SeverityCounts) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Risk Distribution"),
		piechart.WithShowData(true),
	)
	for _, s := range model.AllSeverities() {
		if n := counts[s]; n > 0 {
			chart.LabelAndIntValue(s.Label(), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the highest risk present.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, counts model.SeverityCounts) {
	switch {
	case counts[model.SeverityCritical] > 0:
		md.Cautionf("%d critical finding(s) require immediate attention.", counts[model.SeverityCritical])
	case counts[model.SeverityHigh] > 0:
		md.Warningf("%d high risk finding(s) should be addressed.", counts[model.SeverityHigh])
	case counts[model.SeverityMedium] > 0:
		md.Importantf("%d medium risk finding(s) found.", counts[model.SeverityMedium])
	case counts.Total() > 0:
		md.Note("Only low risk and informational findings.")
	default:
		md.Tip("No findings.")
	}
	md.PlainText("")
}

// writeFindings writes the filtered records as a table.
func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, result *model.BatchResult) {
	md.H2("Findings")
	md.PlainText("")

	if len(result.Filtered) == 0 {
		md.PlainText(emptyFilteredText(result) + ".")
		md.PlainText("")
		return
	}

	records := result.Filtered
	if w.maxFindings > 0 && len(records) > w.maxFindings {
		records = records[:w.maxFindings]
	}

	rows := make([][]string, len(records))
	for i := range records {
		r := &records[i]
		rows[i] = []string{
			strconv.Itoa(r.SequenceID),
			r.Severity.Label(),
			truncateString(singleLine(r.VulnerabilityName), 60),
			"`" + target(r) + "`",
			r.Family.DisplayName(),
			joinSet(r.CVEs, ", "),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"No.", "Risk", "Vulnerability", "Target", "Source", "CVE"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(records) < len(result.Filtered) {
		md.PlainTextf("*%d more finding(s) in the workbook.*", len(result.Filtered)-len(records))
		md.PlainText("")
	}
}

// writeHosts writes the per-host finding counts.
func (w *MarkdownWriter) writeHosts(md *markdown.Markdown, result *model.BatchResult) {
	if len(result.Hosts) == 0 {
		return
	}
	md.H2("Findings per Host")
	md.PlainText("")

	rows := make([][]string, len(result.Hosts))
	for i, h := range result.Hosts {
		rows[i] = []string{h.Host, strconv.Itoa(h.Count)}
	}
	md.Table(markdown.TableSet{Header: []string{"Host", "Findings"}, Rows: rows})
	md.PlainText("")
}

// writeFiles writes per-file statistics.
func (w *MarkdownWriter) writeFiles(md *markdown.Markdown, result *model.BatchResult) {
	md.H2("Input Files")
	md.PlainText("")

	rows := make([][]string, len(result.Files))
	for i, f := range result.Files {
		note := f.Error
		if note == "" {
			note = "-"
		}
		rows[i] = []string{
			"`" + f.Path + "`",
			f.Family.DisplayName(),
			string(f.Status),
			strconv.Itoa(f.Rows),
			strconv.Itoa(f.SkippedRows),
			truncateString(note, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"File", "Source", "Status", "Rows", "Skipped", "Note"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeWarnings lists every warning of the run.
func (w *MarkdownWriter) writeWarnings(md *markdown.Markdown, result *model.BatchResult) {
	if len(result.Warnings) == 0 {
		return
	}
	md.H2("Warnings")
	md.PlainText("")

	items := make([]string, len(result.Warnings))
	for i, warn := range result.Warnings {
		items[i] = warn.String()
	}
	md.BulletList(items...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by vulnmerge*")
}
