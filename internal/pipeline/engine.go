package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/vulnmerge/internal/adapter"
	"github.com/nao1215/vulnmerge/internal/config"
	"github.com/nao1215/vulnmerge/internal/merge"
	"github.com/nao1215/vulnmerge/internal/model"
	"github.com/nao1215/vulnmerge/internal/normalize"
	"github.com/nao1215/vulnmerge/internal/report"
	"github.com/nao1215/vulnmerge/internal/textenc"
)

// Request describes one merge batch.
type Request struct {
	// Inputs lists the files to read per scanner family.
	Inputs map[model.Family][]string
	// OutputDir receives the report artifacts. Empty writes nothing.
	OutputDir string
	// MinRisk selects the filtered view. The zero value keeps every record.
	MinRisk merge.Threshold
	// Accumulate merges the previous run's records with the new ones.
	// It needs a history store.
	Accumulate bool
}

// History stores runs between invocations.
type History interface {
	// LatestRecords returns the merged records of the most recent run that
	// belong to one of families.
	LatestRecords(ctx context.Context, families []model.Family) ([]model.Record, error)
	// SaveRun stores a finished run.
	SaveRun(ctx context.Context, result *model.BatchResult) error
}

// Engine runs merge batches. The column tables and the risk vocabulary are
// fixed at construction; an Engine is safe for concurrent use.
type Engine struct {
	adapters    map[model.Family]adapter.Adapter
	columns     map[model.Family]config.ColumnTable
	vocabulary  model.Vocabulary
	concurrency int
	history     History
	artifacts   []report.Artifact
	logger      *slog.Logger
	now         func() time.Time

	mappers  map[model.Family]*normalize.ColumnMapper
	builders map[model.Family]*normalize.Builder
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger of the engine and its steps.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithWorkers sets how many files are parsed at once.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithAdapters replaces the adapters of the given families.
func WithAdapters(adapters ...adapter.Adapter) EngineOption {
	return func(e *Engine) {
		for _, a := range adapters {
			e.adapters[a.Family()] = a
		}
	}
}

// WithColumnTables replaces the column tables of the given families.
func WithColumnTables(tables map[model.Family]config.ColumnTable) EngineOption {
	return func(e *Engine) {
		for f, t := range tables {
			e.columns[f] = t.Clone()
		}
	}
}

// WithVocabulary replaces the risk vocabulary.
func WithVocabulary(v model.Vocabulary) EngineOption {
	return func(e *Engine) {
		e.vocabulary = v.Clone()
	}
}

// WithHistory enables the persist and accumulate steps.
func WithHistory(h History) EngineOption {
	return func(e *Engine) {
		e.history = h
	}
}

// WithArtifacts sets the report files written into the output directory.
func WithArtifacts(artifacts ...report.Artifact) EngineOption {
	return func(e *Engine) {
		e.artifacts = artifacts
	}
}

// WithClock sets the time source used for run timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine with the default adapters, column tables and
// vocabulary, then applies opts.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		adapters:    adapter.Registry(adapter.DefaultSettings()),
		columns:     make(map[model.Family]config.ColumnTable),
		vocabulary:  config.DefaultVocabulary(),
		concurrency: config.DefaultConcurrency,
		now:         time.Now,
	}
	for _, f := range model.AllFamilies() {
		e.columns[f] = config.DefaultColumnTable(f)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	risk := normalize.NewRiskNormalizer(e.vocabulary)
	e.mappers = make(map[model.Family]*normalize.ColumnMapper, len(e.columns))
	e.builders = make(map[model.Family]*normalize.Builder, len(e.columns))
	for f, t := range e.columns {
		e.mappers[f] = normalize.NewColumnMapper(t)
		e.builders[f] = normalize.NewBuilder(f, risk)
	}
	return e
}

// Pipeline returns the steps the engine runs for a request.
func (e *Engine) Pipeline(req Request) *Pipeline {
	batch := NewBatchProcessor(e.parseFile,
		WithConcurrency(e.concurrency),
		WithBatchLogger(e.logger),
	)

	p := New(WithLogger(e.logger))
	p.AddStep(NewParseStep(batch, e.logger))
	if e.history != nil && req.Accumulate {
		p.AddStep(NewAccumulateStep(e.history, e.logger))
	}
	p.AddSteps(
		NewMergeStep(e.logger),
		FilterStep{},
		NewAssembleStep(e.now),
	)
	if e.history != nil {
		p.AddStep(NewPersistStep(e.history, e.logger))
	}
	if req.OutputDir != "" && len(e.artifacts) > 0 {
		p.AddStep(NewOutputStep(e.artifacts, e.logger))
	}
	return p
}

// Run executes one batch. The only fatal outcomes are ErrNothingParsed, a
// cancelled or expired context, and failing to write the artifacts; every
// other problem is a warning in the result.
func (e *Engine) Run(ctx context.Context, req Request) (*model.BatchResult, error) {
	run := NewRunState(req, uuid.NewString(), e.now())
	p := e.Pipeline(req)

	e.logger.Info("merge run started",
		"run", run.Result.RunID,
		"files", len(Jobs(req.Inputs)),
		"steps", p.StepCount(),
	)
	if err := p.Execute(ctx, run); err != nil {
		return nil, err
	}
	e.logger.Info("merge run complete",
		"run", run.Result.RunID,
		"records", run.Result.TotalRecords,
		"merged", run.Result.MergedCount,
		"filtered", run.Result.FilteredCount,
		"warnings", len(run.Result.Warnings),
		"elapsed", run.Result.Duration(),
	)
	return run.Result, nil
}

// Run executes one batch on an engine built from opts.
func Run(ctx context.Context, req Request, opts ...EngineOption) (*model.BatchResult, error) {
	return NewEngine(opts...).Run(ctx, req)
}

// parseFile reads one file into records. Problems with the file or its rows
// are returned in the outcome; only cancellation is an error.
func (e *Engine) parseFile(ctx context.Context, job FileJob) (FileOutcome, error) {
	out := FileOutcome{Stat: model.FileStat{Path: job.Path, Family: job.Family}}
	skip := func(w model.Warning) (FileOutcome, error) {
		out.Stat.Status = model.FileSkipped
		out.Stat.Error = w.Message
		out.Warnings = append(out.Warnings, w)
		return out, nil
	}

	a, ok := e.adapters[job.Family]
	if !ok {
		return skip(model.Warning{Kind: model.WarningParseFile, File: job.Path,
			Message: fmt.Sprintf("%v: %s", ErrNoAdapter, job.Family)})
	}

	data, err := os.ReadFile(job.Path)
	if err != nil {
		return skip(model.Warning{Kind: model.WarningParseFile, File: job.Path, Message: err.Error()})
	}

	parsed, err := a.Parse(ctx, adapter.Document{Path: job.Path, Data: data})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return FileOutcome{}, ctxErr
		}
		var (
			encErr   *textenc.EncodingError
			parseErr *adapter.ParseError
		)
		switch {
		case errors.As(err, &encErr):
			return skip(model.Warning{Kind: model.WarningEncoding, File: job.Path, Message: encErr.Error()})
		case errors.As(err, &parseErr):
			return skip(parseErr.Warning())
		default:
			return skip(model.Warning{Kind: model.WarningParseFile, File: job.Path, Message: err.Error()})
		}
	}

	out.Stat.Encoding = parsed.Encoding
	for _, w := range parsed.Warnings {
		out.Warnings = append(out.Warnings, w)
		if w.Kind == model.WarningParseRow {
			out.Stat.SkippedRows++
		}
	}

	mapper, builder := e.mappers[job.Family], e.builders[job.Family]
	if mapper == nil {
		return skip(model.Warning{Kind: model.WarningParseFile, File: job.Path,
			Message: "no column table for family " + string(job.Family)})
	}

	var (
		mapped      bool
		schemaErr   error
		requiredErr error
		reported    = make(map[string]bool)
	)
	for _, t := range parsed.Tables {
		binding, err := mapper.Map(t.Headers)
		if err != nil {
			if schemaErr == nil {
				schemaErr = err
			}
			if !t.Optional && requiredErr == nil {
				requiredErr = err
			}
			continue
		}
		mapped = true

		for _, raw := range t.Rows {
			if err := ctx.Err(); err != nil {
				return FileOutcome{}, err
			}
			out.Stat.Rows++
			if raw.RunID == "" {
				raw.RunID = job.Path
			}

			row := binding.Apply(raw)
			ws, err := a.Refine(&row)
			for _, w := range ws {
				if w.Kind == model.WarningMissingReference {
					if reported[w.Message] {
						continue
					}
					reported[w.Message] = true
				}
				out.Warnings = append(out.Warnings, w)
			}
			if errors.Is(err, adapter.ErrRowFiltered) {
				continue
			}
			if err == nil {
				var rec model.Record
				rec, err = builder.Build(&row)
				if err == nil {
					if rec.Flags.UnknownSeverity {
						out.Warnings = append(out.Warnings, model.Warning{
							Kind:    model.WarningUnknownSeverity,
							File:    raw.OriginFile,
							Row:     raw.Row,
							Message: fmt.Sprintf("risk %q is not in the vocabulary", row.Get(model.FieldRisk)),
						})
					}
					out.Records = append(out.Records, rec)
					continue
				}
			}
			out.Stat.SkippedRows++
			pe := &adapter.ParseError{File: job.Path, Row: raw.Row, Err: err}
			out.Warnings = append(out.Warnings, pe.Warning())
		}
	}

	out.Stat.Status = model.FileParsed
	switch {
	case !mapped:
		out.Stat.Status = model.FilePlaceholder
		msg := "no table found"
		if requiredErr != nil {
			msg = requiredErr.Error()
		} else if schemaErr != nil {
			msg = schemaErr.Error()
		}
		out.Stat.Error = msg
		out.Warnings = append(out.Warnings, model.Warning{Kind: model.WarningSchema, File: job.Path, Message: msg})
	case requiredErr != nil:
		out.Warnings = append(out.Warnings, model.Warning{Kind: model.WarningSchema, File: job.Path, Message: requiredErr.Error()})
	}
	return out, nil
}
