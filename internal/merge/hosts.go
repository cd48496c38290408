package merge

import (
	"net/url"
	"sort"
	"strings"

	"github.com/nao1215/vulnmerge/internal/model"
)

// CountByHost counts web findings per host. The host is the record IP when
// present, otherwise the host name of its URL. Records without either are
// not counted. The result is sorted by count descending, then host.
func CountByHost(records []model.Record) []model.HostCount {
	counts := make(map[string]int)
	for _, r := range records {
		if r.Family != model.FamilyWeb {
			continue
		}
		host := hostOf(&r)
		if host == "" {
			continue
		}
		counts[host]++
	}

	out := make([]model.HostCount, 0, len(counts))
	for h, n := range counts {
		out = append(out, model.HostCount{Host: h, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return compareAddr(out[i].Host, out[j].Host) < 0
	})
	return out
}

func hostOf(r *model.Record) string {
	if r.IP != nil {
		return *r.IP
	}
	if r.URL == nil {
		return ""
	}
	raw := strings.TrimSpace(*r.URL)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
