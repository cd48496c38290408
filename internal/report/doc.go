// Package report renders batch results.
//
// This package contains writers for different output formats:
//   - XLSXWriter: the merged workbook (all records, filtered records, ports,
//     hosts, severity counts and warnings)
//   - JSONWriter: structured JSON output for tool integration
//   - MarkdownWriter: a summary for sharing, with a severity chart
//   - SimpleWriter: a plain text summary for terminal display
//
// Files in the output directory are written through WriteFileAtomic, so a
// reader never sees a half-written workbook.
package report
