package merge

import (
	"net/netip"
	"sort"

	"github.com/nao1215/vulnmerge/internal/model"
)

// Assemble sorts records for reporting and numbers them 1..N.
//
// Records are ordered by address ascending (the IP, or the URL when there is
// no IP), then severity descending, then name ascending. Family, port,
// protocol and URL break the remaining ties so the order is total. IPs compare
// numerically and sort before anything that is not an IP.
func Assemble(records []model.Record) []model.Record {
	out := make([]model.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return less(&out[i], &out[j])
	})
	for i := range out {
		out[i].SequenceID = i + 1
	}
	return out
}

func less(a, b *model.Record) bool {
	if c := compareAddr(a.Address(), b.Address()); c != 0 {
		return c < 0
	}
	if a.Severity != b.Severity {
		return a.Severity > b.Severity
	}
	if a.VulnerabilityName != b.VulnerabilityName {
		return a.VulnerabilityName < b.VulnerabilityName
	}
	if a.Family != b.Family {
		return a.Family < b.Family
	}
	if pa, pb := portOf(a), portOf(b); pa != pb {
		return pa < pb
	}
	if a.Protocol != b.Protocol {
		return a.Protocol < b.Protocol
	}
	if ua, ub := deref(a.URL), deref(b.URL); ua != ub {
		return ua < ub
	}
	if ia, ib := deref(a.IP), deref(b.IP); ia != ib {
		return ia < ib
	}
	return a.Position.Before(b.Position)
}

// compareAddr orders IPs numerically, then other strings lexically.
// Empty addresses sort last.
func compareAddr(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return 1
	}
	if b == "" {
		return -1
	}
	ipA, errA := netip.ParseAddr(a)
	ipB, errB := netip.ParseAddr(b)
	switch {
	case errA == nil && errB == nil:
		return ipA.Compare(ipB)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	case a < b:
		return -1
	default:
		return 1
	}
}

func portOf(r *model.Record) int {
	if r.Port == nil {
		return -1
	}
	return *r.Port
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
