package adapter

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nao1215/vulnmerge/internal/model"
	"github.com/nao1215/vulnmerge/internal/textenc"
)

// gridRow is one row of cells with its 1-based line number in the source.
type gridRow struct {
	line  int
	cells []string
}

// htmlMode selects how HTML tables are interpreted.
type htmlMode int

const (
	// htmlGrid treats the first row of every table as its header row.
	htmlGrid htmlMode = iota
	// htmlKeyValue additionally turns two-column tables into one record
	// whose headers are the first column.
	htmlKeyValue
)

// readTabular dispatches on the document extension and returns its tables.
func readTabular(doc Document, family model.Family, resolver *textenc.Resolver, mode htmlMode) (*Parsed, error) {
	switch doc.Ext() {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		sheet, rows, err := readWorkbook(doc.Data)
		if err != nil {
			return nil, &ParseError{File: doc.Path, Err: err}
		}
		p := &Parsed{}
		if t, ok := gridTable(doc, family, sheet, rows); ok {
			p.Tables = append(p.Tables, t)
		}
		return p, nil

	case ".csv", ".tsv", ".txt":
		text, enc, err := resolver.Resolve(doc.Data)
		if err != nil {
			return nil, err
		}
		comma := ','
		if doc.Ext() == ".tsv" {
			comma = '\t'
		}
		rows, warnings, err := readDelimited(doc.Path, text, comma)
		if err != nil {
			return nil, err
		}
		p := &Parsed{Encoding: enc, Warnings: warnings}
		if t, ok := gridTable(doc, family, "", rows); ok {
			p.Tables = append(p.Tables, t)
		}
		return p, nil

	case ".html", ".htm":
		text, enc, err := resolver.Resolve(doc.Data)
		if err != nil {
			return nil, err
		}
		tables, err := readHTML(doc, family, text, mode)
		if err != nil {
			return nil, &ParseError{File: doc.Path, Err: err}
		}
		return &Parsed{Encoding: enc, Tables: tables}, nil
	}

	return nil, &ParseError{File: doc.Path, Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, doc.Ext())}
}

// readWorkbook returns the name and rows of the first sheet of an xlsx file.
func readWorkbook(data []byte) (string, []gridRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return "", nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	out := make([]gridRow, 0, len(rows))
	for i, cells := range rows {
		out = append(out, gridRow{line: i + 1, cells: cells})
	}
	return sheets[0], out, nil
}

// readDelimited reads csv text. Malformed lines become row warnings and the
// reader moves on to the next line.
func readDelimited(path, text string, comma rune) ([]gridRow, []model.Warning, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = comma
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var (
		rows     []gridRow
		warnings []model.Warning
	)
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				pe := &ParseError{File: path, Row: perr.StartLine, Err: perr.Err}
				warnings = append(warnings, pe.Warning())
				continue
			}
			return nil, nil, &ParseError{File: path, Err: err}
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, gridRow{line: line, cells: cells})
	}
	return rows, warnings, nil
}

// gridTable turns rows into a table. The first row with a non-blank cell is
// the header row. Blank rows are dropped.
func gridTable(doc Document, family model.Family, name string, rows []gridRow) (Table, bool) {
	start := -1
	for i, row := range rows {
		if !blank(row.cells) {
			start = i
			break
		}
	}
	if start < 0 {
		return Table{}, false
	}

	headers := uniqueHeaders(rows[start].cells)
	t := Table{Name: name, Headers: headers}
	for _, row := range rows[start+1:] {
		if blank(row.cells) {
			continue
		}
		fields := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" || i >= len(row.cells) {
				continue
			}
			fields[h] = row.cells[i]
		}
		t.Rows = append(t.Rows, model.RawRecord{
			Fields:     fields,
			OriginFile: doc.Path,
			Family:     family,
			Row:        row.line,
		})
	}
	return t, true
}

// uniqueHeaders trims headers and suffixes repeated names with "#2", "#3".
func uniqueHeaders(cells []string) []string {
	seen := make(map[string]int, len(cells))
	out := make([]string, len(cells))
	for i, c := range cells {
		h := strings.TrimSpace(c)
		if h == "" {
			continue
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = h + "#" + strconv.Itoa(n)
		}
		out[i] = h
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
