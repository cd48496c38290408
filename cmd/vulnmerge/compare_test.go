package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/vulnmerge/internal/database"
	"github.com/nao1215/vulnmerge/internal/model"
)

func hostFinding(name, ip string, port int, sev model.Severity) model.Record {
	return model.Record{
		Family:            model.FamilyHost,
		IP:                model.OptionalString(ip),
		Port:              model.OptionalInt(port),
		VulnerabilityName: name,
		Severity:          sev,
		OriginFiles:       model.NewStringSet("rsas.csv"),
	}
}

func webFinding(name, url string, sev model.Severity) model.Record {
	return model.Record{
		Family:            model.FamilyWeb,
		URL:               model.OptionalString(url),
		VulnerabilityName: name,
		Severity:          sev,
		OriginFiles:       model.NewStringSet("awvs.html"),
	}
}

func storedRun(runID string, started time.Time, records ...model.Record) *model.BatchResult {
	return &model.BatchResult{
		RunID:       runID,
		StartedAt:   started,
		FinishedAt:  started.Add(time.Second),
		Merged:      records,
		MergedCount: len(records),
	}
}

// setupHistory stores the given runs in a fresh database.
func setupHistory(t *testing.T, runs ...*model.BatchResult) (*database.HistoryDB, string) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, r := range runs {
		if err := db.SaveRun(context.Background(), r); err != nil {
			t.Fatalf("failed to save run %s: %v", r.RunID, err)
		}
	}
	return db, dir
}

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func twoRuns() []*model.BatchResult {
	return []*model.BatchResult{
		storedRun("week1", base,
			hostFinding("Weak password", "10.0.0.1", 22, model.SeverityMedium),
			hostFinding("Telnet enabled", "10.0.0.3", 23, model.SeverityHigh),
			hostFinding("Banner disclosure", "10.0.0.4", 80, model.SeverityInfo),
			webFinding("XSS", "https://shop.example.com/search", model.SeverityHigh),
		),
		storedRun("week2", base.Add(7*24*time.Hour),
			hostFinding("Weak password", "10.0.0.1", 22, model.SeverityCritical),
			hostFinding("Banner disclosure", "10.0.0.4", 80, model.SeverityInfo),
			hostFinding("SMB signing disabled", "10.0.0.5", 445, model.SeverityMedium),
			webFinding("XSS", "https://shop.example.com/search", model.SeverityHigh),
		),
	}
}

// TestNewCompareCmd tests the compare command creation.
func TestNewCompareCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCompareCmd()
	if cmd.Use != "compare" {
		t.Errorf("expected use 'compare', got %q", cmd.Use)
	}
	for _, name := range []string{"list", "with-run", "family", "json", "markdown", "db-dir"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

// TestCompareRuns tests comparing stored runs.
func TestCompareRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("latest two runs", func(t *testing.T) {
		t.Parallel()

		db, _ := setupHistory(t, twoRuns()...)
		result, err := compareRuns(ctx, db, 0, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.PreviousRun.RunID != "week1" || result.CurrentRun.RunID != "week2" {
			t.Errorf("unexpected runs %s -> %s", result.PreviousRun.RunID, result.CurrentRun.RunID)
		}
		if len(result.NewFindings) != 1 || result.NewFindings[0].VulnerabilityName != "SMB signing disabled" {
			t.Errorf("unexpected new findings %+v", result.NewFindings)
		}
		if len(result.ResolvedFindings) != 1 || result.ResolvedFindings[0].VulnerabilityName != "Telnet enabled" {
			t.Errorf("unexpected resolved findings %+v", result.ResolvedFindings)
		}
		if len(result.ChangedFindings) != 1 {
			t.Fatalf("expected 1 changed finding, got %d", len(result.ChangedFindings))
		}
		changed := result.ChangedFindings[0]
		if changed.Before != model.SeverityMedium || changed.Record.Severity != model.SeverityCritical {
			t.Errorf("unexpected change %s -> %s", changed.Before, changed.Record.Severity)
		}
		if result.UnchangedCount != 2 {
			t.Errorf("expected 2 unchanged, got %d", result.UnchangedCount)
		}
		if result.RiskChange.Direction != riskDirectionWorsened {
			t.Errorf("expected worsened, got %s", result.RiskChange.Direction)
		}
		if result.RiskChange.Deltas["Critical"] != 1 || result.RiskChange.Deltas["High"] != -1 {
			t.Errorf("unexpected deltas %v", result.RiskChange.Deltas)
		}
	})

	t.Run("restricted to one family", func(t *testing.T) {
		t.Parallel()

		db, _ := setupHistory(t, twoRuns()...)
		result, err := compareRuns(ctx, db, 0, model.FamilyWeb)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.CurrentRun.TotalFindings != 1 || result.UnchangedCount != 1 {
			t.Errorf("unexpected web comparison %+v", result)
		}
		if result.RiskChange.Direction != riskDirectionUnchanged {
			t.Errorf("expected unchanged, got %s", result.RiskChange.Direction)
		}
	})

	t.Run("with a specific run", func(t *testing.T) {
		t.Parallel()

		runs := append(twoRuns(), storedRun("week3", base.Add(14*24*time.Hour),
			hostFinding("Banner disclosure", "10.0.0.4", 80, model.SeverityInfo)))
		db, _ := setupHistory(t, runs...)

		stored, err := db.GetRun(ctx, "week1")
		if err != nil {
			t.Fatal(err)
		}
		result, err := compareRuns(ctx, db, stored.ID, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.PreviousRun.RunID != "week1" || result.CurrentRun.RunID != "week3" {
			t.Errorf("unexpected runs %s -> %s", result.PreviousRun.RunID, result.CurrentRun.RunID)
		}
		if result.RiskChange.Direction != riskDirectionImproved {
			t.Errorf("expected improved, got %s", result.RiskChange.Direction)
		}
		if len(result.ResolvedFindings) != 3 {
			t.Errorf("expected 3 resolved findings, got %d", len(result.ResolvedFindings))
		}
	})

	t.Run("latest run cannot be its own baseline", func(t *testing.T) {
		t.Parallel()

		db, _ := setupHistory(t, twoRuns()...)
		latest, err := db.GetRun(ctx, "week2")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := compareRuns(ctx, db, latest.ID, ""); err == nil {
			t.Error("expected error when comparing the latest run with itself")
		}
	})

	t.Run("needs two runs", func(t *testing.T) {
		t.Parallel()

		db, _ := setupHistory(t, twoRuns()[0])
		_, err := compareRuns(ctx, db, 0, "")
		if err == nil || !strings.Contains(err.Error(), "at least 2 runs") {
			t.Errorf("expected at least 2 runs error, got %v", err)
		}
	})

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()

		db, _ := setupHistory(t)
		if _, err := compareRuns(ctx, db, 0, ""); err == nil {
			t.Error("expected error for empty history")
		}
	})

	t.Run("unknown run id", func(t *testing.T) {
		t.Parallel()

		db, _ := setupHistory(t, twoRuns()...)
		if _, err := compareRuns(ctx, db, 999, ""); err == nil {
			t.Error("expected error for unknown run id")
		}
	})
}

// TestRunCompareCmd tests the command output formats.
func TestRunCompareCmd(t *testing.T) {
	t.Parallel()

	execute := func(t *testing.T, dbDir string, args ...string) (string, error) {
		t.Helper()
		cmd := NewCompareCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(append(args, "--db-dir", dbDir))
		err := cmd.Execute()
		return out.String(), err
	}

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		db, dir := setupHistory(t, twoRuns()...)
		_ = db.Close()

		out, err := execute(t, dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"Run Comparison", "Worsened", "New Findings (1)", "SMB signing disabled", "10.0.0.5:445", "[MEDIUM -> CRITICAL]", "Resolved Findings (1)"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("markdown", func(t *testing.T) {
		t.Parallel()

		db, dir := setupHistory(t, twoRuns()...)
		_ = db.Close()

		out, err := execute(t, dir, "--markdown", "--family", "host")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(strings.ToLower(out), "metric") {
			t.Errorf("expected the summary table, got:\n%s", out)
		}
		for _, want := range []string{"# Run Comparison: ", "## Changed Findings (1)", "~~"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
		if strings.Contains(out, "shop.example.com") {
			t.Error("expected web records to be left out")
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		db, dir := setupHistory(t, twoRuns()...)
		_ = db.Close()

		out, err := execute(t, dir, "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got ComparisonResult
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if got.CurrentRun.RunID != "week2" || len(got.NewFindings) != 1 || got.UnchangedCount != 2 {
			t.Errorf("unexpected result %+v", got)
		}
	})

	t.Run("list", func(t *testing.T) {
		t.Parallel()

		db, dir := setupHistory(t, twoRuns()...)
		_ = db.Close()

		out, err := execute(t, dir, "--list")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Merge runs (2)") || !strings.Contains(out, "C:1") {
			t.Errorf("unexpected list output:\n%s", out)
		}
	})

	t.Run("list empty", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, t.TempDir(), "--list")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No merge runs found") {
			t.Errorf("unexpected output: %s", out)
		}
	})

	t.Run("conflicting formats", func(t *testing.T) {
		t.Parallel()

		if _, err := execute(t, t.TempDir(), "--json", "--markdown"); err == nil {
			t.Error("expected error for --json with --markdown")
		}
	})

	t.Run("unknown family", func(t *testing.T) {
		t.Parallel()

		if _, err := execute(t, t.TempDir(), "--family", "firewall"); err == nil {
			t.Error("expected error for unknown family")
		}
	})
}

func TestFormatRiskSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		summary map[string]int
		want    string
	}{
		{name: "nil", summary: nil, want: "N/A"},
		{name: "empty", summary: map[string]int{}, want: noFindingsMessage},
		{name: "ordered by level", summary: map[string]int{"Low": 3, "Critical": 1, "Medium": 2}, want: "C:1 M:2 L:3"},
		{name: "unknown", summary: map[string]int{"Unknown": 4}, want: "U:4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatRiskSummary(tt.summary); got != tt.want {
				t.Errorf("formatRiskSummary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta int
		want  string
	}{
		{delta: 3, want: "+3"},
		{delta: -2, want: "-2"},
		{delta: 0, want: "0"},
	}
	for _, tt := range tests {
		if got := formatDelta(tt.delta); got != tt.want {
			t.Errorf("formatDelta(%d) = %q, want %q", tt.delta, got, tt.want)
		}
	}
}
