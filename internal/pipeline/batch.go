package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/vulnmerge/internal/model"
)

// FileJob is one input file to parse.
type FileJob struct {
	Family model.Family
	Path   string
}

// FileOutcome is what parsing one file produced.
type FileOutcome struct {
	Stat     model.FileStat
	Records  []model.Record
	Warnings []model.Warning
}

// ParseFunc parses one file. A returned error aborts the whole batch, so it
// is reserved for cancellation; file problems are reported in the outcome.
type ParseFunc func(ctx context.Context, job FileJob) (FileOutcome, error)

// BatchProcessor parses files concurrently with a bounded number of workers.
// Process returns only after every started parse finished.
type BatchProcessor struct {
	parse       ParseFunc
	concurrency int
	logger      *slog.Logger

	results []FileOutcome
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of files parsed at once.
// Default is 4 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(parse ParseFunc, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		parse:       parse,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch parses every job and returns the outcomes in job order.
// If the context is cancelled or its deadline passes, results already
// collected are discarded and the context error is returned.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, jobs []FileJob) ([]FileOutcome, error) {
	bp.logger.Debug("starting batch processing",
		"files", len(jobs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	bp.results = make([]FileOutcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			outcome, err := bp.parse(gctx, job)
			if err != nil {
				return err
			}

			bp.mu.Lock()
			bp.results[i] = outcome
			bp.mu.Unlock()

			bp.logger.Debug("file processed",
				"path", job.Path,
				"family", job.Family,
				"status", outcome.Stat.Status,
				"records", len(outcome.Records),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bp.logger.Debug("batch processing complete",
		"files", len(jobs),
		"elapsed", time.Since(startTime),
	)
	return bp.results, nil
}

// Concurrency returns the configured concurrency limit.
func (bp *BatchProcessor) Concurrency() int {
	return bp.concurrency
}
