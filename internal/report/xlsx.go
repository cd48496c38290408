package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/nao1215/vulnmerge/internal/model"
)

// Sheet names of the workbook.
const (
	SheetMerged   = "Merged"
	SheetFiltered = "Filtered"
	SheetPorts    = "Ports"
	SheetHosts    = "Hosts"
	SheetSeverity = "Severity"
	SheetWarnings = "Warnings"
)

// findingHeaders is the header row of the merged and filtered sheets.
var findingHeaders = []any{
	"No.", "Family", "IP", "URL", "Port", "Vulnerability", "Risk",
	"Description", "Remediation", "CVE", "Evidence", "Service", "Plugin ID",
	"Occurrences", "First Seen", "Last Seen", "Source Files", "Flags",
}

// XLSXWriter outputs the result as an Excel workbook.
// The workbook is built in memory and streamed to the output in one call.
type XLSXWriter struct {
	baseWriter
}

// NewXLSXWriter creates an XLSXWriter that outputs to the given writer.
func NewXLSXWriter(output io.Writer) *XLSXWriter {
	return &XLSXWriter{baseWriter: newBaseWriter(output)}
}

// Write builds the workbook and writes it to the output.
func (w *XLSXWriter) Write(result *model.BatchResult) (int, error) {
	f, err := BuildWorkbook(result)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := f.WriteTo(w.output)
	return int(n), err
}

// BuildWorkbook returns the workbook of a result. The caller closes it.
func BuildWorkbook(result *model.BatchResult) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetMerged); err != nil {
		_ = f.Close()
		return nil, err
	}
	for _, name := range []string{SheetFiltered, SheetPorts, SheetHosts, SheetSeverity, SheetWarnings} {
		if _, err := f.NewSheet(name); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	b := &sheetBuilder{f: f}
	b.findings(SheetMerged, result.Merged, "")
	b.findings(SheetFiltered, result.Filtered, emptyFilteredText(result))
	b.ports(result.Ports)
	b.hosts(result.Hosts)
	b.severity(result)
	b.warnings(result.Warnings)
	if b.err != nil {
		_ = f.Close()
		return nil, b.err
	}

	idx, err := f.GetSheetIndex(SheetFiltered)
	if err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

// sheetBuilder writes rows and keeps the first error.
type sheetBuilder struct {
	f   *excelize.File
	err error
}

func (b *sheetBuilder) row(sheet string, n int, values []any) {
	if b.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		b.err = err
		return
	}
	if err := b.f.SetSheetRow(sheet, cell, &values); err != nil {
		b.err = fmt.Errorf("sheet %s row %d: %w", sheet, n, err)
	}
}

func (b *sheetBuilder) header(sheet string, values []any) {
	b.row(sheet, 1, values)
	if b.err != nil {
		return
	}
	style, err := b.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		b.err = err
		return
	}
	if err := b.f.SetRowStyle(sheet, 1, 1, style); err != nil {
		b.err = err
	}
}

// findings writes one record per row. An empty sheet gets the placeholder
// row when one is given.
func (b *sheetBuilder) findings(sheet string, records []model.Record, placeholder string) {
	b.header(sheet, findingHeaders)
	if len(records) == 0 && placeholder != "" {
		b.row(sheet, 2, []any{"", "", "", "", "", placeholder})
		return
	}
	for i := range records {
		r := &records[i]
		var port any = ""
		if r.Port != nil {
			port = *r.Port
		}
		b.row(sheet, i+2, []any{
			r.SequenceID,
			r.Family.DisplayName(),
			deref(r.IP),
			deref(r.URL),
			port,
			r.VulnerabilityName,
			r.Severity.Label(),
			r.Description,
			r.Remediation,
			joinSet(r.CVEs, "\n"),
			joinSet(r.Evidence, "\n"),
			r.Service,
			r.PluginID,
			r.Occurrences,
			timeCell(r.FirstSeen),
			timeCell(r.LastSeen),
			joinSet(r.OriginFiles, "\n"),
			flagsCell(r.Flags),
		})
	}
}

func (b *sheetBuilder) ports(ports []model.PortRuns) {
	b.header(SheetPorts, []any{"IP", "Port", "Scan Runs"})
	for i, p := range ports {
		b.row(SheetPorts, i+2, []any{p.IP, p.Port, p.Runs})
	}
}

func (b *sheetBuilder) hosts(hosts []model.HostCount) {
	b.header(SheetHosts, []any{"Host", "Findings"})
	for i, h := range hosts {
		b.row(SheetHosts, i+2, []any{h.Host, h.Count})
	}
}

func (b *sheetBuilder) severity(result *model.BatchResult) {
	b.header(SheetSeverity, []any{"Risk", "Merged", "Filtered"})
	merged := model.CountBySeverity(result.Merged)
	filtered := model.CountBySeverity(result.Filtered)
	n := 2
	for _, s := range model.AllSeverities() {
		if s == model.SeverityUnknown && merged[s] == 0 {
			continue
		}
		b.row(SheetSeverity, n, []any{s.Label(), merged[s], filtered[s]})
		n++
	}
	b.row(SheetSeverity, n, []any{"Total", merged.Total(), filtered.Total()})
}

func (b *sheetBuilder) warnings(warnings []model.Warning) {
	b.header(SheetWarnings, []any{"Kind", "File", "Row", "Message"})
	for i, w := range warnings {
		row := ""
		if w.Row > 0 {
			row = strconv.Itoa(w.Row)
		}
		b.row(SheetWarnings, i+2, []any{string(w.Kind), w.File, row, w.Message})
	}
}
