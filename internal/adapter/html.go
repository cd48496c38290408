package adapter

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nao1215/vulnmerge/internal/model"
)

// targetHeader is the raw header under which a detected scan target is
// attached to key/value records.
const targetHeader = "Target"

var targetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^scan of\s+(\S+)`),
	regexp.MustCompile(`(?i)^start url\s*[:：]?\s*(\S+)`),
	regexp.MustCompile(`^扫描目标\s*[:：]?\s*(\S+)`),
	regexp.MustCompile(`(?i)^target\s*[:：]\s*(\S+)`),
}

// readHTML extracts the tables of an HTML report. Every returned table is
// optional; the caller decides whether the document as a whole mapped.
func readHTML(doc Document, family model.Family, text string, mode htmlMode) ([]Table, error) {
	root, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return nil, err
	}

	var target string
	if mode == htmlKeyValue {
		target = detectTarget(nodeText(root))
	}

	var (
		tables []Table
		line   int
	)
	for i, cells := range collectTables(root) {
		if len(cells) == 0 {
			continue
		}
		if mode == htmlKeyValue && isKeyValue(cells) {
			line++
			t := keyValueTable(doc, family, cells, target, line)
			t.Name = "table " + strconv.Itoa(i+1)
			tables = append(tables, t)
			continue
		}
		if len(cells) < 2 {
			continue
		}
		rows := make([]gridRow, len(cells))
		for j, c := range cells {
			line++
			rows[j] = gridRow{line: line, cells: c}
		}
		if t, ok := gridTable(doc, family, "table "+strconv.Itoa(i+1), rows); ok && len(t.Rows) > 0 {
			t.Optional = true
			tables = append(tables, t)
		}
	}
	return tables, nil
}

// keyValueTable turns a two-column table into a single record.
func keyValueTable(doc Document, family model.Family, cells [][]string, target string, line int) Table {
	headers := make([]string, 0, len(cells)+1)
	for _, c := range cells {
		headers = append(headers, c[0])
	}
	headers = uniqueHeaders(headers)

	fields := make(map[string]string, len(headers)+1)
	for i, h := range headers {
		if h != "" {
			fields[h] = cells[i][1]
		}
	}
	if target != "" {
		if _, ok := fields[targetHeader]; !ok {
			headers = append(headers, targetHeader)
			fields[targetHeader] = target
		}
	}
	return Table{
		Headers:  headers,
		Optional: true,
		Rows: []model.RawRecord{{
			Fields:     fields,
			OriginFile: doc.Path,
			Family:     family,
			Row:        line,
		}},
	}
}

// isKeyValue reports whether every row has exactly two cells and the table
// has at least two rows.
func isKeyValue(cells [][]string) bool {
	if len(cells) < 2 {
		return false
	}
	for _, row := range cells {
		if len(row) != 2 || strings.TrimSpace(row[0]) == "" {
			return false
		}
	}
	return true
}

// detectTarget looks for the scan target line of an AWVS style report.
func detectTarget(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, p := range targetPatterns {
			if m := p.FindStringSubmatch(line); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

// collectTables returns the cell text of every table in document order.
// Nested tables are returned separately as well.
func collectTables(root *html.Node) [][][]string {
	var out [][][]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			out = append(out, tableRows(n))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func tableRows(table *html.Node) [][]string {
	var rows [][]string
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Thead, atom.Tbody, atom.Tfoot:
				visit(c)
			case atom.Tr:
				var cells []string
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type == html.ElementNode && (cell.DataAtom == atom.Td || cell.DataAtom == atom.Th) {
						cells = append(cells, nodeText(cell))
					}
				}
				if len(cells) > 0 {
					rows = append(rows, cells)
				}
			}
		}
	}
	visit(table)
	return rows
}

// nodeText returns the visible text below n. Line breaks and block elements
// become newlines; each line is trimmed and blank lines are dropped.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Head:
				return
			case atom.Br:
				b.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.P, atom.Div, atom.Tr, atom.Li, atom.Pre, atom.Table, atom.H1, atom.H2, atom.H3, atom.H4:
				b.WriteByte('\n')
			}
		}
	}
	walk(n)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
