package merge

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/nao1215/vulnmerge/internal/model"
)

type recOpt func(*model.Record)

func newRec(family model.Family, name string, sev model.Severity, file string, row int, opts ...recOpt) model.Record {
	r := model.Record{
		Family:            family,
		VulnerabilityName: name,
		Severity:          sev,
		OriginFiles:       model.NewStringSet(file),
		Position:          model.Position{File: file, Row: row},
		Flags:             model.Flags{UnknownSeverity: sev == model.SeverityUnknown},
	}
	for _, o := range opts {
		o(&r)
	}
	r.Occurrences = r.ScanRuns.Len()
	return r
}

func withIP(s string) recOpt  { return func(r *model.Record) { r.IP = model.OptionalString(s) } }
func withURL(s string) recOpt { return func(r *model.Record) { r.URL = model.OptionalString(s) } }
func withPort(n int) recOpt   { return func(r *model.Record) { r.Port = model.OptionalInt(n) } }
func withProto(p model.Protocol) recOpt {
	return func(r *model.Record) { r.Protocol = p }
}
func withDesc(s string) recOpt    { return func(r *model.Record) { r.Description = s } }
func withFix(s string) recOpt     { return func(r *model.Record) { r.Remediation = s } }
func withCVEs(v ...string) recOpt { return func(r *model.Record) { r.CVEs = model.NewStringSet(v...) } }
func withEvidence(v ...string) recOpt {
	return func(r *model.Record) { r.Evidence = model.NewStringSet(v...) }
}
func withRun(id string) recOpt { return func(r *model.Record) { r.ScanRuns = model.NewStringSet(id) } }
func withSeen(first, last time.Time) recOpt {
	return func(r *model.Record) { r.FirstSeen, r.LastSeen = &first, &last }
}

// TestMergeSameFinding tests that rows sharing a key fold into one record.
func TestMergeSameFinding(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	t3 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	res := Merge([]model.Record{
		newRec(model.FamilyHost, "TLS weak cipher", model.SeverityMedium, "b.xlsx", 2,
			withIP("10.0.0.1"), withPort(443), withDesc("later description"), withCVEs("CVE-2016-2183"), withEvidence("RC4"), withSeen(t2, t3)),
		newRec(model.FamilyHost, "TLS Weak Cipher ", model.SeverityHigh, "a.xlsx", 5,
			withIP("10.0.0.1"), withPort(443), withFix("disable RC4"), withCVEs("CVE-2013-2566"), withEvidence("RC4", "3DES"), withSeen(t1, t2)),
	})

	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(res.Records))
	}
	r := res.Records[0]
	if r.Severity != model.SeverityHigh {
		t.Errorf("Severity = %v, want High", r.Severity)
	}
	if !reflect.DeepEqual(r.OriginFiles.Sorted(), []string{"a.xlsx", "b.xlsx"}) {
		t.Errorf("OriginFiles = %v", r.OriginFiles.Sorted())
	}
	if !reflect.DeepEqual(r.CVEs.Sorted(), []string{"CVE-2013-2566", "CVE-2016-2183"}) {
		t.Errorf("CVEs = %v", r.CVEs.Sorted())
	}
	if !reflect.DeepEqual(r.Evidence.Sorted(), []string{"3DES", "RC4"}) {
		t.Errorf("Evidence = %v", r.Evidence.Sorted())
	}
	// a.xlsx sorts first, so its empty description is skipped and b's is used,
	// while the remediation comes from a.xlsx.
	if r.Description != "later description" || r.Remediation != "disable RC4" {
		t.Errorf("Description = %q, Remediation = %q", r.Description, r.Remediation)
	}
	if r.VulnerabilityName != "TLS Weak Cipher " {
		t.Errorf("name should come from the first row by position, got %q", r.VulnerabilityName)
	}
	if !r.FirstSeen.Equal(t1) || !r.LastSeen.Equal(t3) {
		t.Errorf("seen = %v..%v", r.FirstSeen, r.LastSeen)
	}
	if r.Position != (model.Position{File: "a.xlsx", Row: 5}) {
		t.Errorf("Position = %+v", r.Position)
	}
}

// TestMergeFamiliesStayApart tests that keys are scoped per family.
func TestMergeFamiliesStayApart(t *testing.T) {
	t.Parallel()

	res := Merge([]model.Record{
		newRec(model.FamilyHost, "SSH weak key", model.SeverityLow, "h.csv", 1, withIP("10.0.0.1"), withPort(22)),
		newRec(model.FamilyVulnMgmt, "SSH weak key", model.SeverityLow, "n.csv", 1, withIP("10.0.0.1"), withPort(22)),
	})
	if len(res.Records) != 2 {
		t.Errorf("got %d records, cross-family records must not merge", len(res.Records))
	}
}

// TestMergeOccurrences tests distinct scan run counting.
func TestMergeOccurrences(t *testing.T) {
	t.Parallel()

	var in []model.Record
	for i, id := range []string{"s1.xml@1", "s2.xml@2", "s3.xml@3", "s3.xml@3"} {
		in = append(in, newRec(model.FamilyPort, "Open port 22/tcp", model.SeverityInfo, id, i+1,
			withIP("10.0.0.5"), withPort(22), withProto(model.ProtocolTCP), withRun(id)))
	}
	res := Merge(in)
	if len(res.Records) != 1 {
		t.Fatalf("got %d records", len(res.Records))
	}
	if res.Records[0].Occurrences != 3 {
		t.Errorf("Occurrences = %d, want 3", res.Records[0].Occurrences)
	}
}

// TestMergeAmbiguity tests conflicting protocols and IPs.
func TestMergeAmbiguity(t *testing.T) {
	t.Parallel()

	t.Run("host protocols", func(t *testing.T) {
		t.Parallel()
		res := Merge([]model.Record{
			newRec(model.FamilyHost, "DNS amplification", model.SeverityMedium, "a.csv", 1, withIP("10.0.0.2"), withPort(53), withProto(model.ProtocolTCP)),
			newRec(model.FamilyHost, "DNS amplification", model.SeverityHigh, "a.csv", 2, withIP("10.0.0.2"), withPort(53), withProto(model.ProtocolUDP)),
			newRec(model.FamilyHost, "DNS amplification", model.SeverityLow, "a.csv", 3, withIP("10.0.0.2"), withPort(53)),
			newRec(model.FamilyHost, "DNS amplification", model.SeverityLow, "a.csv", 4, withIP("10.0.0.2"), withPort(53), withProto(model.ProtocolUDP)),
		})
		if len(res.Records) != 3 {
			t.Fatalf("got %d records, want tcp, udp and unspecified", len(res.Records))
		}
		for _, r := range res.Records {
			if !r.Flags.MergeAmbiguity {
				t.Errorf("record %v not flagged", r.Protocol)
			}
		}
		if res.Records[1].Protocol != model.ProtocolUDP || res.Records[1].Severity != model.SeverityHigh {
			t.Errorf("udp record = %+v", res.Records[1])
		}
		if len(res.Ambiguous) != 1 {
			t.Errorf("Ambiguous = %v", res.Ambiguous)
		}
	})

	t.Run("single protocol is not ambiguous", func(t *testing.T) {
		t.Parallel()
		res := Merge([]model.Record{
			newRec(model.FamilyHost, "x", model.SeverityLow, "a.csv", 1, withIP("10.0.0.2"), withPort(80)),
			newRec(model.FamilyHost, "x", model.SeverityLow, "a.csv", 2, withIP("10.0.0.2"), withPort(80), withProto(model.ProtocolTCP)),
		})
		if len(res.Records) != 1 || res.Records[0].Flags.MergeAmbiguity {
			t.Fatalf("got %+v", res.Records)
		}
		if res.Records[0].Protocol != model.ProtocolTCP {
			t.Errorf("Protocol = %v", res.Records[0].Protocol)
		}
	})

	t.Run("web ips", func(t *testing.T) {
		t.Parallel()
		res := Merge([]model.Record{
			newRec(model.FamilyWeb, "XSS", model.SeverityHigh, "w.csv", 1, withURL("http://a/"), withIP("1.1.1.1")),
			newRec(model.FamilyWeb, "XSS", model.SeverityHigh, "w.csv", 2, withURL("http://a/"), withIP("2.2.2.2")),
			newRec(model.FamilyWeb, "XSS", model.SeverityHigh, "w.csv", 3, withURL("http://a/")),
		})
		if len(res.Records) != 3 {
			t.Fatalf("got %d records", len(res.Records))
		}
		for _, r := range res.Records {
			if !r.Flags.MergeAmbiguity {
				t.Error("web record not flagged")
			}
		}
	})
}

func sampleRecords() []model.Record {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return []model.Record{
		newRec(model.FamilyHost, "TLS weak cipher", model.SeverityHigh, "a.xlsx", 2, withIP("10.0.0.1"), withPort(443), withCVEs("CVE-2016-2183"), withSeen(t1, t1)),
		newRec(model.FamilyHost, "TLS weak cipher", model.SeverityMedium, "b.xlsx", 2, withIP("10.0.0.1"), withPort(443), withDesc("d"), withSeen(t2, t2)),
		newRec(model.FamilyHost, "DNS amplification", model.SeverityMedium, "a.xlsx", 3, withIP("10.0.0.2"), withPort(53), withProto(model.ProtocolTCP)),
		newRec(model.FamilyHost, "DNS amplification", model.SeverityHigh, "b.xlsx", 3, withIP("10.0.0.2"), withPort(53), withProto(model.ProtocolUDP)),
		newRec(model.FamilyHost, "DNS amplification", model.SeverityLow, "b.xlsx", 4, withIP("10.0.0.2"), withPort(53)),
		newRec(model.FamilyWeb, "SQL injection", model.SeverityCritical, "w.csv", 1, withURL("http://shop/"), withEvidence("id=1'")),
		newRec(model.FamilyWeb, "SQL injection", model.SeverityUnknown, "w2.csv", 1, withURL("http://shop/"), withEvidence("id=2'"), withFix("use prepared statements")),
		newRec(model.FamilyPort, "Open port 22/tcp", model.SeverityInfo, "s1.xml", 1, withIP("10.0.0.5"), withPort(22), withProto(model.ProtocolTCP), withRun("s1")),
		newRec(model.FamilyPort, "Open port 22/tcp", model.SeverityInfo, "s2.xml", 1, withIP("10.0.0.5"), withPort(22), withProto(model.ProtocolTCP), withRun("s2")),
		newRec(model.FamilyHost, "Unknown thing", model.SeverityUnknown, "c.csv", 1, withIP("10.0.0.9")),
	}
}

// TestMergeIdempotent tests that merging merged output changes nothing.
func TestMergeIdempotent(t *testing.T) {
	t.Parallel()

	once := Merge(sampleRecords()).Records
	twice := Merge(once).Records
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merge is not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

// TestMergeOrderIndependent tests that input order does not change the result.
func TestMergeOrderIndependent(t *testing.T) {
	t.Parallel()

	want := Assemble(Merge(sampleRecords()).Records)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 25; i++ {
		in := sampleRecords()
		rng.Shuffle(len(in), func(a, b int) { in[a], in[b] = in[b], in[a] })
		got := Assemble(Merge(in).Records)
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("shuffle %d changed the result", i)
		}
	}
}

// TestMergeSeverityMonotonic tests that merged severity is the group maximum.
func TestMergeSeverityMonotonic(t *testing.T) {
	t.Parallel()

	in := sampleRecords()
	res := Merge(in).Records
	for _, out := range res {
		k := KeyOf(&out)
		for _, r := range in {
			if KeyOf(&r) == k && partition(&r) == partition(&out) && r.Severity > out.Severity {
				t.Errorf("%s: merged severity %v below member %v", out.VulnerabilityName, out.Severity, r.Severity)
			}
		}
	}

	var sqli model.Record
	for _, r := range res {
		if r.VulnerabilityName == "SQL injection" {
			sqli = r
		}
	}
	if sqli.Severity != model.SeverityCritical || sqli.Flags.UnknownSeverity {
		t.Errorf("an unknown member must not lower a known severity: %+v", sqli)
	}
	if sqli.Remediation != "use prepared statements" {
		t.Errorf("Remediation = %q", sqli.Remediation)
	}
}

// TestFingerprint tests that fingerprints follow merge identity.
func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := newRec(model.FamilyHost, "X", model.SeverityLow, "a", 1, withIP("10.0.0.1"), withPort(80))
	b := newRec(model.FamilyHost, " x ", model.SeverityHigh, "b", 9, withIP("10.0.0.1"), withPort(80))
	c := newRec(model.FamilyHost, "X", model.SeverityLow, "a", 1, withIP("10.0.0.1"), withPort(80), withProto(model.ProtocolUDP))
	if Fingerprint(&a) != Fingerprint(&b) {
		t.Error("records with the same key must share a fingerprint")
	}
	if Fingerprint(&a) == Fingerprint(&c) {
		t.Error("records split by protocol must differ")
	}
	if len(Fingerprint(&a)) != 64 {
		t.Errorf("fingerprint length = %d", len(Fingerprint(&a)))
	}
}

// TestMergeSeenRange tests the first and last seen times of merged records.
func TestMergeSeenRange(t *testing.T) {
	t.Parallel()

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		first     []recOpt
		second    []recOpt
		wantFirst *time.Time
		wantLast  *time.Time
	}{
		{name: "no member has times"},
		{name: "only the later row has times", second: []recOpt{withSeen(jan, mar)}, wantFirst: &jan, wantLast: &mar},
		{name: "only the earlier row has times", first: []recOpt{withSeen(jan, mar)}, wantFirst: &jan, wantLast: &mar},
		{name: "widest range wins", first: []recOpt{withSeen(mar, mar)}, second: []recOpt{withSeen(jan, jan)}, wantFirst: &jan, wantLast: &mar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := Merge([]model.Record{
				newRec(model.FamilyHost, "Weak password", model.SeverityHigh, "a.csv", 1,
					append([]recOpt{withIP("10.0.0.1"), withPort(22)}, tt.first...)...),
				newRec(model.FamilyHost, "Weak password", model.SeverityHigh, "b.csv", 1,
					append([]recOpt{withIP("10.0.0.1"), withPort(22)}, tt.second...)...),
			})
			if len(res.Records) != 1 {
				t.Fatalf("got %d records, want 1", len(res.Records))
			}
			r := res.Records[0]
			if !sameTime(r.FirstSeen, tt.wantFirst) {
				t.Errorf("FirstSeen = %v, want %v", r.FirstSeen, tt.wantFirst)
			}
			if !sameTime(r.LastSeen, tt.wantLast) {
				t.Errorf("LastSeen = %v, want %v", r.LastSeen, tt.wantLast)
			}
		})
	}
}

func TestEarliestLatestDoNotAlias(t *testing.T) {
	t.Parallel()

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := earliest(nil, &jan)
	if got == &jan {
		t.Error("expected a copy of the input time")
	}
	if got := latest(nil, nil); got != nil {
		t.Errorf("latest(nil, nil) = %v, want nil", got)
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
