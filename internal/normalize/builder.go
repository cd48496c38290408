package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/vulnmerge/internal/model"
)

var (
	cvePattern   = regexp.MustCompile(`(?i)CVE[-_:\s]*(\d{4})[-_](\d{4,7})`)
	digitPattern = regexp.MustCompile(`\d+`)
	protoPattern = regexp.MustCompile(`(?i)(tcp|udp)`)
)

// emptyMarkers are cell values that mean "nothing here".
var emptyMarkers = map[string]bool{
	"-": true, "--": true, "/": true, "n/a": true, "na": true,
	"none": true, "null": true, "general": true, "无": true,
}

// timeLayouts are tried in order when parsing first/last seen cells.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"2006/1/2 15:04:05",
	"2006-01-02 15:04",
	"Jan 2, 2006 15:04:05 MST",
	"2006-01-02",
	"2006/01/02",
}

// Builder turns mapped rows of one family into records.
type Builder struct {
	family model.Family
	risk   *RiskNormalizer
}

// NewBuilder returns a builder for a family.
func NewBuilder(family model.Family, risk *RiskNormalizer) *Builder {
	return &Builder{family: family, risk: risk}
}

// Build creates a record from a mapped row. Rows without a vulnerability
// name and rows with an unreadable port are rejected.
func (b *Builder) Build(row *model.MappedRow) (model.Record, error) {
	name := strings.TrimSpace(row.Get(model.FieldName))
	if name == "" {
		return model.Record{}, ErrMissingName
	}

	port, proto, err := ParsePort(row.Get(model.FieldPort))
	if err != nil {
		return model.Record{}, err
	}
	if p := model.ParseProtocol(row.Get(model.FieldProtocol)); p != model.ProtocolUnspecified {
		proto = p
	}

	rec := model.Record{
		Family:            b.family,
		IP:                model.OptionalString(row.Get(model.FieldIP)),
		Port:              port,
		Protocol:          proto,
		VulnerabilityName: name,
		Description:       row.Get(model.FieldDescription),
		Remediation:       row.Get(model.FieldRemediation),
		Service:           row.Get(model.FieldService),
		PluginID:          row.Get(model.FieldPluginID),
		Passthrough:       row.Passthrough,
		Position:          model.Position{File: row.Raw.OriginFile, Row: row.Raw.Row},
	}

	if u := row.Get(model.FieldURL); u != "" {
		rec.URL = &u
	} else if t := row.Get(model.FieldTarget); t != "" {
		rec.URL = &t
	}

	sev, known := b.risk.Normalize(row.Get(model.FieldRisk))
	rec.Severity = sev
	rec.Flags.UnknownSeverity = !known

	for _, cve := range ExtractCVEs(row.Get(model.FieldCVE)) {
		rec.CVEs.Add(cve)
	}
	rec.Evidence.Add(row.Get(model.FieldEvidence))
	rec.Evidence.Add(row.Get(model.FieldRequest))
	for _, e := range row.Extra {
		rec.Evidence.Add(e)
	}
	rec.OriginFiles.Add(row.Raw.OriginFile)
	rec.ScanRuns.Add(row.Raw.RunID)
	rec.Occurrences = rec.ScanRuns.Len()

	rec.FirstSeen = parseTime(row.Get(model.FieldFirstSeen))
	rec.LastSeen = parseTime(row.Get(model.FieldLastSeen))
	if rec.FirstSeen == nil && rec.LastSeen == nil && row.Raw.Timestamp != nil {
		ts := *row.Raw.Timestamp
		rec.FirstSeen, rec.LastSeen = &ts, &ts
	}
	if rec.FirstSeen == nil && rec.LastSeen != nil {
		ts := *rec.LastSeen
		rec.FirstSeen = &ts
	}
	if rec.LastSeen == nil && rec.FirstSeen != nil {
		ts := *rec.FirstSeen
		rec.LastSeen = &ts
	}
	return rec, nil
}

// ParsePort reads a port cell such as "443", "443/tcp", "tcp/443" or
// "TCP 443". An empty cell or a placeholder like "-" yields no port.
func ParsePort(s string) (*int, model.Protocol, error) {
	s = strings.TrimSpace(s)
	if s == "" || emptyMarkers[strings.ToLower(s)] {
		return nil, model.ProtocolUnspecified, nil
	}

	proto := model.ProtocolUnspecified
	if m := protoPattern.FindStringSubmatch(s); m != nil {
		proto = model.ParseProtocol(m[1])
	}

	digits := digitPattern.FindAllString(s, -1)
	if len(digits) != 1 {
		return nil, proto, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	n, err := strconv.Atoi(digits[0])
	if err != nil || n > 65535 {
		return nil, proto, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	return &n, proto, nil
}

// ExtractCVEs returns the CVE ids found in s in canonical "CVE-YYYY-NNNN" form.
func ExtractCVEs(s string) []string {
	var out []string
	for _, m := range cvePattern.FindAllStringSubmatch(s, -1) {
		out = append(out, "CVE-"+m[1]+"-"+m[2])
	}
	return out
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
