package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/vulnmerge/internal/config"
	"github.com/nao1215/vulnmerge/internal/database"
	"github.com/nao1215/vulnmerge/internal/merge"
	"github.com/nao1215/vulnmerge/internal/model"
)

// Constants for risk direction and summary messages.
const (
	riskDirectionWorsened  = "worsened"
	riskDirectionImproved  = "improved"
	riskDirectionUnchanged = "unchanged"
	noFindingsMessage      = "No findings"
)

// riskWeights scores a run so two runs can be ranked. Unknown is left out.
var riskWeights = map[model.Severity]int{
	model.SeverityCritical: 100,
	model.SeverityHigh:     50,
	model.SeverityMedium:   10,
	model.SeverityLow:      5,
	model.SeverityInfo:     1,
}

// NewCompareCmd creates the compare command.
// This command compares merge runs stored in the history database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the latest merge run with an earlier one",
		Long: `Compare displays differences between two stored merge runs.

Records are matched by their merge key, so the same finding reported by a
different scanner or in a different file is not counted as new. It shows:
- New findings that appeared since the earlier run
- Resolved findings that are no longer present
- Findings whose merged risk level changed

The comparison requires at least two runs in the history database. Every
'vulnmerge merge' stores its run unless --no-history is given.

Examples:
  # Compare the latest two runs
  vulnmerge compare

  # List all stored runs
  vulnmerge compare --list

  # Compare the latest run with a specific one by ID
  vulnmerge compare --with-run 5

  # Only compare web findings, as JSON
  vulnmerge compare --family web --json`,
		Args: cobra.NoArgs,
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List stored merge runs")
	cmd.Flags().Int64P("with-run", "i", 0,
		"Compare with a specific run by ID (use --list to see available IDs)")
	cmd.Flags().StringP("family", "f", "",
		"Only compare records of this scanner family (host, web, vulnmgmt, port)")

	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the run history database")

	return cmd
}

// compareOptions holds the parsed compare flags.
type compareOptions struct {
	list     bool
	withRun  int64
	family   model.Family
	json     bool
	markdown bool
	dbDir    string
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, _ []string) error {
	opts, err := parseCompareFlags(cmd)
	if err != nil {
		return err
	}

	// Flags are validated before the database is opened or created
	db, err := database.Open(opts.dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	if opts.list {
		return listRuns(ctx, db, out)
	}
	result, err := compareRuns(ctx, db, opts.withRun, opts.family)
	if err != nil {
		return err
	}

	switch {
	case opts.json:
		return outputComparisonJSON(out, result)
	case opts.markdown:
		return outputComparisonMarkdown(out, result)
	default:
		return outputComparisonText(out, result)
	}
}

func parseCompareFlags(cmd *cobra.Command) (compareOptions, error) {
	var opts compareOptions
	var err error
	flags := cmd.Flags()

	if opts.list, err = flags.GetBool("list"); err != nil {
		return opts, err
	}
	if opts.withRun, err = flags.GetInt64("with-run"); err != nil {
		return opts, err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return opts, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return opts, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return opts, err
	}
	family, err := flags.GetString("family")
	if err != nil {
		return opts, err
	}
	if family != "" {
		if opts.family, err = model.ParseFamily(family); err != nil {
			return opts, err
		}
	}

	if opts.json && opts.markdown {
		return opts, config.ErrConflictingReportFormats
	}
	if opts.withRun < 0 {
		return opts, errors.New("--with-run must be a positive run ID")
	}
	return opts, nil
}

// listRuns prints every stored run, newest first.
func listRuns(ctx context.Context, db *database.HistoryDB, out io.Writer) error {
	runs, err := db.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No merge runs found in the database.")
		fmt.Fprintln(out, "\nUse 'vulnmerge merge' to merge scanner exports.")
		return nil
	}

	fmt.Fprintf(out, "Merge runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-24s  %s\n", "ID", "Date", "Families", "Risk Summary")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 76))

	for _, run := range runs {
		fams := make([]string, len(run.Families))
		for i, f := range run.Families {
			fams[i] = string(f)
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-24s  %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			strings.Join(fams, ","),
			formatRiskSummary(run.RiskSummary),
		)
	}

	fmt.Fprintln(out, "\nUse 'vulnmerge compare' to compare the latest two runs.")
	fmt.Fprintln(out, "Use 'vulnmerge compare --with-run <id>' to compare with a specific run.")
	return nil
}

// formatRiskSummary formats the label-keyed risk summary as "C:1 H:2 ...".
func formatRiskSummary(summary map[string]int) string {
	if summary == nil {
		return "N/A"
	}

	var parts []string
	for _, s := range model.AllSeverities() {
		if v := summary[s.Label()]; v > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", s.Label()[:1], v))
		}
	}
	if len(parts) == 0 {
		return noFindingsMessage
	}
	return strings.Join(parts, " ")
}

// ComparisonResult holds the result of comparing two merge runs.
type ComparisonResult struct {
	// Family is set when the comparison was restricted to one family.
	Family model.Family `json:"family,omitempty"`

	PreviousRun RunMetadata `json:"previous_run"`
	CurrentRun  RunMetadata `json:"current_run"`

	// NewFindings are present in the current run only.
	NewFindings []model.Record `json:"new_findings,omitempty"`

	// ResolvedFindings are present in the previous run only.
	ResolvedFindings []model.Record `json:"resolved_findings,omitempty"`

	// ChangedFindings are present in both runs with a different risk level.
	ChangedFindings []SeverityChange `json:"changed_findings,omitempty"`

	// UnchangedCount is the number of findings present in both runs with the
	// same risk level.
	UnchangedCount int `json:"unchanged_count"`

	RiskChange RiskChange `json:"risk_change"`
}

// RunMetadata describes one side of a comparison.
type RunMetadata struct {
	ID            int64          `json:"id"`
	RunID         string         `json:"run_id"`
	StartedAt     time.Time      `json:"started_at"`
	TotalFindings int            `json:"total_findings"`
	Counts        map[string]int `json:"counts"`
}

// SeverityChange is a finding whose merged risk level moved between runs.
type SeverityChange struct {
	Record model.Record   `json:"record"`
	Before model.Severity `json:"before"`
}

// RiskChange describes the change in risk level between runs.
type RiskChange struct {
	// Direction is "improved", "worsened", or "unchanged".
	Direction string `json:"direction"`

	// Deltas is the change of the count per risk label.
	Deltas map[string]int `json:"deltas"`
}

// compareRuns loads the latest run and the run it is compared with.
// withRun selects the earlier run by row id; zero means the one before the
// latest.
func compareRuns(ctx context.Context, db *database.HistoryDB, withRun int64, family model.Family) (*ComparisonResult, error) {
	runs, err := db.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, errors.New("no merge runs found in the database")
	}
	if len(runs) < 2 && withRun == 0 {
		return nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(runs))
	}

	current := runs[0]
	var previous database.RunSummary
	if withRun > 0 {
		p, err := db.GetRunByID(ctx, withRun)
		if err != nil {
			return nil, fmt.Errorf("failed to get run with ID %d: %w", withRun, err)
		}
		if p.ID == current.ID {
			return nil, fmt.Errorf("run %d is the latest run; choose an earlier one", withRun)
		}
		previous = *p
	} else {
		previous = runs[1]
	}

	before, err := db.RunRecords(ctx, previous.RunID)
	if err != nil {
		return nil, err
	}
	after, err := db.RunRecords(ctx, current.RunID)
	if err != nil {
		return nil, err
	}
	if family != "" {
		before = model.ByFamily(before, family)
		after = model.ByFamily(after, family)
	}

	return buildComparison(previous, current, before, after, family), nil
}

// buildComparison diffs the records of two runs.
func buildComparison(previous, current database.RunSummary, before, after []model.Record, family model.Family) *ComparisonResult {
	diff := merge.Diff(before, after)

	result := &ComparisonResult{
		Family:           family,
		PreviousRun:      runMetadata(previous, before),
		CurrentRun:       runMetadata(current, after),
		NewFindings:      diff.New,
		ResolvedFindings: diff.Resolved,
		UnchangedCount:   len(after) - len(diff.New) - len(diff.Changed),
	}
	for _, c := range diff.Changed {
		result.ChangedFindings = append(result.ChangedFindings, SeverityChange{Record: c.Record, Before: c.Before})
	}
	result.RiskChange = calculateRiskChange(before, after)
	return result
}

func runMetadata(run database.RunSummary, records []model.Record) RunMetadata {
	counts := make(map[string]int)
	for s, n := range model.CountBySeverity(records) {
		if n > 0 {
			counts[s.Label()] = n
		}
	}
	return RunMetadata{
		ID:            run.ID,
		RunID:         run.RunID,
		StartedAt:     run.StartedAt,
		TotalFindings: len(records),
		Counts:        counts,
	}
}

// calculateRiskChange calculates the change in risk between two runs.
func calculateRiskChange(before, after []model.Record) RiskChange {
	prev := model.CountBySeverity(before)
	cur := model.CountBySeverity(after)

	change := RiskChange{Deltas: make(map[string]int)}
	previousScore, currentScore := 0, 0
	for _, s := range model.AllSeverities() {
		change.Deltas[s.Label()] = cur[s] - prev[s]
		previousScore += prev[s] * riskWeights[s]
		currentScore += cur[s] * riskWeights[s]
	}

	switch {
	case currentScore < previousScore:
		change.Direction = riskDirectionImproved
	case currentScore > previousScore:
		change.Direction = riskDirectionWorsened
	default:
		change.Direction = riskDirectionUnchanged
	}
	return change
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(out io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// title returns the heading of a comparison.
func (r *ComparisonResult) title() string {
	if r.Family != "" {
		return "Run Comparison: " + r.Family.DisplayName()
	}
	return "Run Comparison"
}

// outputComparisonMarkdown outputs the comparison result in Markdown format.
func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)
	md.H1(result.title())
	md.PlainText("")

	md.H2("Summary")
	md.PlainText("")
	md.PlainTextf("**Risk Status:** %s", formatRiskDirection(result.RiskChange.Direction))
	md.PlainText("")

	rows := [][]string{{
		"Run",
		"`" + result.PreviousRun.RunID + "`",
		"`" + result.CurrentRun.RunID + "`",
		"-",
	}, {
		"Date",
		result.PreviousRun.StartedAt.Local().Format("2006-01-02 15:04"),
		result.CurrentRun.StartedAt.Local().Format("2006-01-02 15:04"),
		"-",
	}}
	for _, s := range comparedSeverities(result) {
		label := s.Label()
		rows = append(rows, []string{
			label,
			strconv.Itoa(result.PreviousRun.Counts[label]),
			strconv.Itoa(result.CurrentRun.Counts[label]),
			formatDelta(result.RiskChange.Deltas[label]),
		})
	}
	rows = append(rows, []string{
		"**Total**",
		"**" + strconv.Itoa(result.PreviousRun.TotalFindings) + "**",
		"**" + strconv.Itoa(result.CurrentRun.TotalFindings) + "**",
		"**" + formatDelta(result.CurrentRun.TotalFindings-result.PreviousRun.TotalFindings) + "**",
	})
	md.Table(markdown.TableSet{Header: []string{"Metric", "Previous", "Current", "Change"}, Rows: rows})
	md.PlainText("")

	if len(result.NewFindings) > 0 {
		md.H2(fmt.Sprintf("New Findings (%d)", len(result.NewFindings)))
		md.PlainText("")
		items := make([]string, len(result.NewFindings))
		for i := range result.NewFindings {
			r := &result.NewFindings[i]
			items[i] = fmt.Sprintf("**[%s]** %s: `%s`", r.Severity.Label(), r.VulnerabilityName, recordTarget(r))
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if len(result.ChangedFindings) > 0 {
		md.H2(fmt.Sprintf("Changed Findings (%d)", len(result.ChangedFindings)))
		md.PlainText("")
		items := make([]string, len(result.ChangedFindings))
		for i := range result.ChangedFindings {
			c := &result.ChangedFindings[i]
			items[i] = fmt.Sprintf("**[%s → %s]** %s: `%s`",
				c.Before.Label(), c.Record.Severity.Label(), c.Record.VulnerabilityName, recordTarget(&c.Record))
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if len(result.ResolvedFindings) > 0 {
		md.H2(fmt.Sprintf("Resolved Findings (%d)", len(result.ResolvedFindings)))
		md.PlainText("")
		items := make([]string, len(result.ResolvedFindings))
		for i := range result.ResolvedFindings {
			r := &result.ResolvedFindings[i]
			items[i] = fmt.Sprintf("~~**[%s]** %s: `%s`~~", r.Severity.Label(), r.VulnerabilityName, recordTarget(r))
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if result.UnchangedCount > 0 {
		md.HorizontalRule()
		md.PlainText("")
		md.PlainTextf("*%d findings unchanged*", result.UnchangedCount)
	}
	return md.Build()
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	var sb strings.Builder

	sb.WriteString(result.title() + "\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "\nRisk Status: %s\n", formatRiskDirection(result.RiskChange.Direction))

	fmt.Fprintf(&sb, "\nPrevious run: %s  (%s)\n",
		result.PreviousRun.StartedAt.Local().Format("2006-01-02 15:04:05"), result.PreviousRun.RunID)
	fmt.Fprintf(&sb, "Current run:  %s  (%s)\n",
		result.CurrentRun.StartedAt.Local().Format("2006-01-02 15:04:05"), result.CurrentRun.RunID)

	sb.WriteString("\nFindings Summary:\n")
	fmt.Fprintf(&sb, "  %-10s  %-10s  %-10s  %-10s\n", "Risk", "Previous", "Current", "Change")
	sb.WriteString("  " + strings.Repeat("-", 45) + "\n")
	for _, s := range comparedSeverities(result) {
		label := s.Label()
		fmt.Fprintf(&sb, "  %-10s  %-10d  %-10d  %-10s\n", label,
			result.PreviousRun.Counts[label], result.CurrentRun.Counts[label],
			formatDelta(result.RiskChange.Deltas[label]))
	}
	sb.WriteString("  " + strings.Repeat("-", 45) + "\n")
	fmt.Fprintf(&sb, "  %-10s  %-10d  %-10d  %-10s\n", "Total",
		result.PreviousRun.TotalFindings, result.CurrentRun.TotalFindings,
		formatDelta(result.CurrentRun.TotalFindings-result.PreviousRun.TotalFindings))

	if len(result.NewFindings) > 0 {
		fmt.Fprintf(&sb, "\nNew Findings (%d):\n", len(result.NewFindings))
		for i := range result.NewFindings {
			r := &result.NewFindings[i]
			fmt.Fprintf(&sb, "  + [%s] %s\n      %s\n", r.Severity, r.VulnerabilityName, recordTarget(r))
		}
	}
	if len(result.ChangedFindings) > 0 {
		fmt.Fprintf(&sb, "\nChanged Findings (%d):\n", len(result.ChangedFindings))
		for i := range result.ChangedFindings {
			c := &result.ChangedFindings[i]
			fmt.Fprintf(&sb, "  ~ [%s -> %s] %s\n      %s\n",
				c.Before, c.Record.Severity, c.Record.VulnerabilityName, recordTarget(&c.Record))
		}
	}
	if len(result.ResolvedFindings) > 0 {
		fmt.Fprintf(&sb, "\nResolved Findings (%d):\n", len(result.ResolvedFindings))
		for i := range result.ResolvedFindings {
			r := &result.ResolvedFindings[i]
			fmt.Fprintf(&sb, "  - [%s] %s\n      %s\n", r.Severity, r.VulnerabilityName, recordTarget(r))
		}
	}

	if len(result.NewFindings) == 0 && len(result.ResolvedFindings) == 0 && len(result.ChangedFindings) == 0 {
		sb.WriteString("\nNo changes in findings.\n")
	} else if result.UnchangedCount > 0 {
		fmt.Fprintf(&sb, "\n%d findings unchanged.\n", result.UnchangedCount)
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

// comparedSeverities returns the levels shown in the comparison table.
// Unknown only appears when one of the runs has such records.
func comparedSeverities(result *ComparisonResult) []model.Severity {
	var out []model.Severity
	for _, s := range model.AllSeverities() {
		if s == model.SeverityUnknown &&
			result.PreviousRun.Counts[s.Label()] == 0 && result.CurrentRun.Counts[s.Label()] == 0 {
			continue
		}
		out = append(out, s)
	}
	return out
}

// recordTarget formats where a record was found.
func recordTarget(r *model.Record) string {
	addr := r.Address()
	if addr == "" {
		addr = "-"
	}
	if p := r.PortString(); p != "" && !r.Family.URLKeyed() {
		return addr + ":" + p
	}
	return addr
}

// formatRiskDirection formats the risk direction for display.
func formatRiskDirection(direction string) string {
	switch direction {
	case riskDirectionImproved:
		return "✅ Improved"
	case riskDirectionWorsened:
		return "⚠️ Worsened"
	default:
		return "➖ Unchanged"
	}
}

// formatDelta formats a delta value with +/- sign.
func formatDelta(delta int) string {
	if delta > 0 {
		return fmt.Sprintf("+%d", delta)
	}
	if delta < 0 {
		return strconv.Itoa(delta)
	}
	return "0"
}
