package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/vulnmerge/internal/adapter"
	"github.com/nao1215/vulnmerge/internal/merge"
	"github.com/nao1215/vulnmerge/internal/model"
	"github.com/nao1215/vulnmerge/internal/report"
)

// RunState is the state shared by the steps of one batch.
type RunState struct {
	Request Request

	// Records holds every record built from the inputs, before merging.
	// Records reloaded from history are appended by the accumulate step.
	Records []model.Record
	// Merged holds the merged records before assembly.
	Merged []model.Record
	// Filtered holds the merged records that pass the threshold.
	Filtered []model.Record

	// Written lists the artifact files produced by the output step.
	Written []string
	// Performed lists the names of the steps that completed.
	Performed []string

	Result *model.BatchResult
}

// NewRunState creates the state for a request.
func NewRunState(req Request, runID string, startedAt time.Time) *RunState {
	return &RunState{
		Request: req,
		Result: &model.BatchResult{
			RunID:     runID,
			StartedAt: startedAt,
			MinRisk:   req.MinRisk.String(),
		},
	}
}

func (r *RunState) warn(w ...model.Warning) {
	r.Result.Warnings = append(r.Result.Warnings, w...)
}

// ParseStep reads every input file and builds records.
//
// ParseStep is the only concurrent step. Outcomes are appended in job order.
type ParseStep struct {
	batch  *BatchProcessor
	logger *slog.Logger
}

// NewParseStep creates a parse step that uses batch to parse files.
func NewParseStep(batch *BatchProcessor, logger *slog.Logger) *ParseStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParseStep{batch: batch, logger: logger}
}

// Name returns the step name.
func (s *ParseStep) Name() string {
	return "parse"
}

// Do parses the requested inputs. It fails with ErrNothingParsed when no
// file could be read at all.
func (s *ParseStep) Do(ctx context.Context, run *RunState) error {
	jobs := Jobs(run.Request.Inputs)

	outcomes, err := s.batch.ProcessBatch(ctx, jobs)
	if err != nil {
		return fmt.Errorf("parse inputs: %w", err)
	}

	readable := 0
	for _, o := range outcomes {
		run.Result.Files = append(run.Result.Files, o.Stat)
		run.warn(o.Warnings...)
		run.Records = append(run.Records, o.Records...)
		if o.Stat.Status != model.FileSkipped {
			readable++
		}
	}
	run.Result.TotalRecords = len(run.Records)

	s.logger.Info("inputs parsed",
		"files", len(jobs),
		"readable", readable,
		"records", len(run.Records),
	)
	if readable == 0 {
		return ErrNothingParsed
	}
	return nil
}

// Jobs flattens the request inputs into parse jobs, family by family in
// canonical order.
func Jobs(inputs map[model.Family][]string) []FileJob {
	var jobs []FileJob
	for _, f := range model.AllFamilies() {
		for _, path := range inputs[f] {
			jobs = append(jobs, FileJob{Family: f, Path: path})
		}
	}
	return jobs
}

// AccumulateStep reloads the previous run's merged records so they are
// merged again with the new ones.
type AccumulateStep struct {
	history History
	logger  *slog.Logger
}

// NewAccumulateStep creates an accumulate step backed by history.
func NewAccumulateStep(history History, logger *slog.Logger) *AccumulateStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccumulateStep{history: history, logger: logger}
}

// Name returns the step name.
func (s *AccumulateStep) Name() string {
	return "accumulate"
}

// Do appends the stored records of the requested families. Nothing happens
// unless the request asks for accumulation.
func (s *AccumulateStep) Do(ctx context.Context, run *RunState) error {
	if !run.Request.Accumulate {
		return nil
	}
	families := requestedFamilies(run.Request.Inputs)
	prev, err := s.history.LatestRecords(ctx, families)
	if err != nil {
		s.logger.Warn("previous run not loaded", "error", err)
		run.warn(model.Warning{Kind: model.WarningHistory, Message: "previous run not loaded: " + err.Error()})
		return nil
	}
	run.Records = append(run.Records, prev...)
	run.Result.Accumulated = len(prev)
	s.logger.Debug("previous run loaded", "records", len(prev))
	return nil
}

func requestedFamilies(inputs map[model.Family][]string) []model.Family {
	var out []model.Family
	for _, f := range model.AllFamilies() {
		if len(inputs[f]) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// MergeStep folds records that share a merge key.
type MergeStep struct {
	logger *slog.Logger
}

// NewMergeStep creates a merge step.
func NewMergeStep(logger *slog.Logger) *MergeStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &MergeStep{logger: logger}
}

// Name returns the step name.
func (s *MergeStep) Name() string {
	return "merge"
}

// Do merges run.Records into run.Merged and reports ambiguous keys.
func (s *MergeStep) Do(_ context.Context, run *RunState) error {
	res := merge.Merge(run.Records)
	run.Merged = res.Records
	for _, k := range res.Ambiguous {
		run.warn(model.Warning{
			Kind:    model.WarningMergeAmbiguity,
			Message: ambiguityMessage(k),
		})
	}
	s.logger.Debug("records merged",
		"input", len(run.Records),
		"merged", len(run.Merged),
		"ambiguous", len(res.Ambiguous),
	)
	return nil
}

func ambiguityMessage(k merge.Key) string {
	if k.Family.URLKeyed() {
		return fmt.Sprintf("%s %q at %s reported with different IPs; kept apart", k.Family.DisplayName(), k.Name, k.Addr)
	}
	addr := k.Addr
	if k.Port != "" {
		addr += ":" + k.Port
	}
	return fmt.Sprintf("%s %q at %s reported with different protocols; kept apart", k.Family.DisplayName(), k.Name, addr)
}

// FilterStep keeps the merged records at or above the threshold.
type FilterStep struct{}

// Name returns the step name.
func (FilterStep) Name() string {
	return "filter"
}

// Do fills run.Filtered.
func (FilterStep) Do(_ context.Context, run *RunState) error {
	run.Filtered = merge.Filter(run.Merged, run.Request.MinRisk)
	return nil
}

// AssembleStep orders and numbers the records and computes the statistics.
type AssembleStep struct {
	now func() time.Time
}

// NewAssembleStep creates an assemble step that stamps the finish time with now.
func NewAssembleStep(now func() time.Time) *AssembleStep {
	if now == nil {
		now = time.Now
	}
	return &AssembleStep{now: now}
}

// Name returns the step name.
func (s *AssembleStep) Name() string {
	return "assemble"
}

// Do fills the merged and filtered views of the result. Port frequencies
// come from the records before merging, since merging collapses the runs of
// one endpoint into a single record.
func (s *AssembleStep) Do(_ context.Context, run *RunState) error {
	res := run.Result
	res.Merged = merge.Assemble(run.Merged)
	res.Filtered = merge.Assemble(run.Filtered)
	res.MergedCount = len(res.Merged)
	res.FilteredCount = len(res.Filtered)
	res.Hosts = merge.CountByHost(res.Filtered)
	res.Ports = adapter.Frequency(run.Records)
	res.FinishedAt = s.now()
	return nil
}

// PersistStep stores the run in the history database.
type PersistStep struct {
	history History
	logger  *slog.Logger
}

// NewPersistStep creates a persist step backed by history.
func NewPersistStep(history History, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{history: history, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do saves the result. A failure is reported as a warning; the merged data
// is still written.
func (s *PersistStep) Do(ctx context.Context, run *RunState) error {
	if err := s.history.SaveRun(ctx, run.Result); err != nil {
		s.logger.Warn("run not saved to history", "run", run.Result.RunID, "error", err)
		run.warn(model.Warning{Kind: model.WarningHistory, Message: "run not saved: " + err.Error()})
		return nil
	}
	s.logger.Debug("run saved to history", "run", run.Result.RunID)
	return nil
}

// OutputStep writes the report artifacts into the output directory.
type OutputStep struct {
	artifacts []report.Artifact
	logger    *slog.Logger
}

// NewOutputStep creates an output step for the given artifacts.
func NewOutputStep(artifacts []report.Artifact, logger *slog.Logger) *OutputStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutputStep{artifacts: artifacts, logger: logger}
}

// Name returns the step name.
func (s *OutputStep) Name() string {
	return "output"
}

// Do writes every artifact. Nothing is written when the request has no
// output directory.
func (s *OutputStep) Do(_ context.Context, run *RunState) error {
	if run.Request.OutputDir == "" || len(s.artifacts) == 0 {
		return nil
	}
	written, err := report.WriteArtifacts(run.Request.OutputDir, run.Result, s.artifacts...)
	run.Written = append(run.Written, written...)
	if err != nil {
		return fmt.Errorf("write artifacts: %w", err)
	}
	s.logger.Info("artifacts written", "dir", run.Request.OutputDir, "files", len(written))
	return nil
}
