package merge

import (
	"testing"

	"github.com/nao1215/vulnmerge/internal/model"
)

// TestParseThreshold tests threshold parsing.
func TestParseThreshold(t *testing.T) {
	t.Parallel()

	th, err := ParseThreshold("")
	if err != nil || th.IsSet() {
		t.Errorf("empty threshold: %+v, %v", th, err)
	}
	th, err = ParseThreshold("medium")
	if err != nil {
		t.Fatal(err)
	}
	if lvl, ok := th.Level(); !ok || lvl != model.SeverityMedium || th.String() != "Medium" {
		t.Errorf("got %v, %v, %q", lvl, ok, th.String())
	}
	if _, err := ParseThreshold("severe"); err == nil {
		t.Error("expected error")
	}
}

// TestFilter tests filter correctness for every threshold.
func TestFilter(t *testing.T) {
	t.Parallel()

	var recs []model.Record
	for _, s := range model.AllSeverities() {
		recs = append(recs, model.Record{VulnerabilityName: s.Label(), Severity: s})
	}

	t.Run("unset keeps everything", func(t *testing.T) {
		t.Parallel()
		if got := Filter(recs, Threshold{}); len(got) != len(recs) {
			t.Errorf("got %d records", len(got))
		}
	})

	for _, level := range model.AllSeverities() {
		t.Run(level.Label(), func(t *testing.T) {
			t.Parallel()
			got := Filter(recs, AtLeast(level))
			for _, r := range got {
				if r.Severity == model.SeverityUnknown && level != model.SeverityUnknown {
					t.Errorf("unknown record passed threshold %v", level)
				}
				if r.Severity != model.SeverityUnknown && r.Severity < level {
					t.Errorf("%v passed threshold %v", r.Severity, level)
				}
			}
			for _, r := range recs {
				want := r.Severity >= level && (r.Severity != model.SeverityUnknown || level == model.SeverityUnknown)
				found := false
				for _, g := range got {
					if g.Severity == r.Severity {
						found = true
					}
				}
				if want != found {
					t.Errorf("threshold %v: record %v kept = %v, want %v", level, r.Severity, found, want)
				}
			}
		})
	}

	t.Run("medium excludes unknown", func(t *testing.T) {
		t.Parallel()
		for _, r := range Filter(recs, AtLeast(model.SeverityMedium)) {
			if r.Severity == model.SeverityUnknown {
				t.Error("unknown record kept")
			}
		}
	})
}
