package merge

import (
	"sort"
	"time"

	"github.com/nao1215/vulnmerge/internal/model"
)

// Result is the output of Merge.
type Result struct {
	Records []model.Record
	// Ambiguous lists the keys whose records disagreed on protocol or IP and
	// were kept apart.
	Ambiguous []Key
}

// Merge folds records that share a key into one record per key.
//
// When the records of a host key carry two or more different specified
// protocols, they are merged per protocol, records without a protocol are
// merged into their own record, and every output of the key is flagged with
// MergeAmbiguity. The web family does the same with the IP.
//
// The output keeps the order in which keys are first seen after sorting the
// input by position, so it does not depend on the input order.
func Merge(records []model.Record) Result {
	sorted := make([]model.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return inputLess(&sorted[i], &sorted[j])
	})

	var (
		order  []Key
		groups = make(map[Key][]int)
	)
	for i := range sorted {
		k := KeyOf(&sorted[i])
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	var res Result
	for _, k := range order {
		members := groups[k]

		specified := make(map[string]bool)
		for _, i := range members {
			if p := partition(&sorted[i]); p != "" {
				specified[p] = true
			}
		}
		ambiguous := len(specified) > 1
		if ambiguous {
			res.Ambiguous = append(res.Ambiguous, k)
		}

		var (
			partOrder []string
			parts     = make(map[string][]model.Record)
		)
		for _, i := range members {
			p := ""
			if ambiguous {
				p = partition(&sorted[i])
			}
			if _, ok := parts[p]; !ok {
				partOrder = append(partOrder, p)
			}
			parts[p] = append(parts[p], sorted[i])
		}
		for _, p := range partOrder {
			merged := fold(parts[p])
			if ambiguous {
				merged.Flags.MergeAmbiguity = true
			}
			res.Records = append(res.Records, merged)
		}
	}
	return res
}

// fold combines records that are already in position order.
func fold(members []model.Record) model.Record {
	out := members[0].Clone()
	out.SequenceID = 0

	for _, m := range members[1:] {
		if m.Severity > out.Severity {
			out.Severity = m.Severity
		}
		if out.Description == "" {
			out.Description = m.Description
		}
		if out.Remediation == "" {
			out.Remediation = m.Remediation
		}
		if out.Service == "" {
			out.Service = m.Service
		}
		if out.PluginID == "" {
			out.PluginID = m.PluginID
		}
		if out.IP == nil && m.IP != nil {
			ip := *m.IP
			out.IP = &ip
		}
		if out.URL == nil && m.URL != nil {
			u := *m.URL
			out.URL = &u
		}
		if out.Protocol == model.ProtocolUnspecified {
			out.Protocol = m.Protocol
		}

		out.CVEs = model.Union(out.CVEs, m.CVEs)
		out.Evidence = model.Union(out.Evidence, m.Evidence)
		out.OriginFiles = model.Union(out.OriginFiles, m.OriginFiles)
		out.ScanRuns = model.Union(out.ScanRuns, m.ScanRuns)

		out.FirstSeen = earliest(out.FirstSeen, m.FirstSeen)
		out.LastSeen = latest(out.LastSeen, m.LastSeen)

		for k, v := range m.Passthrough {
			if _, ok := out.Passthrough[k]; ok {
				continue
			}
			if out.Passthrough == nil {
				out.Passthrough = make(map[string]string)
			}
			out.Passthrough[k] = v
		}
		out.Flags.MergeAmbiguity = out.Flags.MergeAmbiguity || m.Flags.MergeAmbiguity
	}

	out.Flags.UnknownSeverity = out.Severity == model.SeverityUnknown
	out.Occurrences = out.ScanRuns.Len()
	return out
}

// earliest returns the earlier of two optional times. A nil side is ignored.
func earliest(a, b *time.Time) *time.Time {
	if b == nil || (a != nil && !b.Before(*a)) {
		return a
	}
	t := *b
	return &t
}

// latest returns the later of two optional times. A nil side is ignored.
func latest(a, b *time.Time) *time.Time {
	if b == nil || (a != nil && !b.After(*a)) {
		return a
	}
	t := *b
	return &t
}

// inputLess orders records by position. Records that share a position, which
// happens when a stored run is merged with a fresh parse of the same file,
// fall back to identity fields so the order stays independent of arrival.
func inputLess(a, b *model.Record) bool {
	if a.Position != b.Position {
		return a.Position.Before(b.Position)
	}
	if a.Family != b.Family {
		return a.Family < b.Family
	}
	if a.VulnerabilityName != b.VulnerabilityName {
		return a.VulnerabilityName < b.VulnerabilityName
	}
	if a.Address() != b.Address() {
		return a.Address() < b.Address()
	}
	return a.Severity > b.Severity
}
