package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/vulnmerge/internal/adapter"
	"github.com/nao1215/vulnmerge/internal/config"
	"github.com/nao1215/vulnmerge/internal/database"
	"github.com/nao1215/vulnmerge/internal/log"
	"github.com/nao1215/vulnmerge/internal/merge"
	"github.com/nao1215/vulnmerge/internal/metrics"
	"github.com/nao1215/vulnmerge/internal/model"
	"github.com/nao1215/vulnmerge/internal/pipeline"
	"github.com/nao1215/vulnmerge/internal/report"
	"github.com/nao1215/vulnmerge/internal/textenc"
)

// familyFlags binds an input flag to its scanner family.
var familyFlags = []struct {
	name      string
	shorthand string
	family    model.Family
	usage     string
}{
	{"host", "H", model.FamilyHost, "Host assessment exports (xlsx, csv or html), repeatable"},
	{"web", "w", model.FamilyWeb, "Web application scan reports (html, xlsx or csv), repeatable"},
	{"vulnmgmt", "n", model.FamilyVulnMgmt, "Vulnerability management csv exports, repeatable"},
	{"port", "p", model.FamilyPort, "Port scans (nmap xml or a port list sheet), repeatable"},
}

// NewMergeCmd creates the merge command.
func NewMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Normalize and merge scanner exports into one workbook",
		Long: `Merge reads scanner exports, maps their columns onto canonical fields and
folds records that describe the same finding into one.

Host families merge on (ip, port, name); the web family merges on (url, name).
The merged severity is the highest one reported; CVEs, evidence, origin files
and scan runs are unioned. Files that cannot be read are skipped and listed
as warnings; the run only fails when no file could be read at all.

Outputs written to the output directory:
- vulnmerge.xlsx: merged records, filtered records, port and host statistics
- vulnmerge.json: the complete run result

Examples:
  # Merge one export of each family, keep Medium and above
  vulnmerge merge --host rsas.xlsx --web awvs.html --vulnmgmt nessus.csv \
    --port scan1.xml --port scan2.xml --min-risk Medium

  # Merge everything in a folder with a shell glob
  vulnmerge merge --host reports/*.xlsx -o merged

  # Re-merge with the records stored by the previous run
  vulnmerge merge --host week2.xlsx --accumulate

  # Save the summary as Markdown and print it too
  vulnmerge merge --host rsas.xlsx --markdown --report-file summary.md --tee`,
		Args: cobra.NoArgs,
		RunE: runMergeCmd,
	}

	for _, f := range familyFlags {
		cmd.Flags().StringSliceP(f.name, f.shorthand, nil, f.usage)
	}

	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Directory the workbook and JSON result are written to")
	cmd.Flags().String("workbook", config.DefaultWorkbookName,
		"File name of the xlsx workbook inside the output directory")
	cmd.Flags().StringP("min-risk", "r", "",
		"Keep records at or above this level in the filtered sheet (Info, Low, Medium, High, Critical, Unknown)")

	cmd.Flags().IntP("concurrency", "b", config.DefaultConcurrency,
		"Number of files parsed in parallel")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for the whole run")

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .vulnmerge in current or home directory)")

	cmd.Flags().BoolP("json", "j", false,
		"Print the run result as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print the run summary as Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("report-file", "R", "",
		"Write the printed report to this file instead of stdout")
	cmd.Flags().Bool("tee", false,
		"With --report-file, print the report to stdout as well")
	cmd.Flags().Bool("log-json", false,
		"Write log lines to stderr as JSON")

	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the run history database")
	cmd.Flags().Bool("no-history", false,
		"Do not store the run in the history database")
	cmd.Flags().BoolP("accumulate", "a", false,
		"Merge the records of the previous stored run with the new input")
	cmd.Flags().String("metrics-file", "",
		"Write run metrics in the Prometheus text format to this file")

	return cmd
}

// runMergeCmd executes the merge command.
func runMergeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)

	// Cancel on interrupt so a stuck input does not leave a half-written workbook
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runMerge(ctx, cfg, logger, cmd.OutOrStdout())
}

// newLogger returns the redacting logger selected by the configuration.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogJSON {
		return log.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return log.NewSecureLogger(w, cfg.Verbose)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	for _, f := range familyFlags {
		paths, err := flags.GetStringSlice(f.name)
		if err != nil {
			return nil, err
		}
		cfg.AddInputs(f.family, paths...)
	}

	if cfg.OutputDir, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.WorkbookName, err = flags.GetString("workbook"); err != nil {
		return nil, err
	}
	if cfg.MinRisk, err = flags.GetString("min-risk"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report-file"); err != nil {
		return nil, err
	}
	if cfg.Tee, err = flags.GetBool("tee"); err != nil {
		return nil, err
	}
	if cfg.LogJSON, err = flags.GetBool("log-json"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory
	if cfg.Accumulate, err = flags.GetBool("accumulate"); err != nil {
		return nil, err
	}
	if cfg.MetricsFile, err = flags.GetString("metrics-file"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	cfg.File, err = loadConfigFile(cfg.ConfigFilePath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFile loads the configuration file.
// If the user explicitly specified a path, a missing file is an error.
// Otherwise a missing file means built-in defaults.
func loadConfigFile(explicitPath string) (*config.File, error) {
	path := config.FindConfigFile(explicitPath)
	if path == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("configuration file not found: %s", explicitPath)
		}
		return nil, nil
	}
	cf, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return cf, nil
}

// engineOptions turns the configuration into pipeline engine options.
func engineOptions(cfg *config.Config, logger *slog.Logger) ([]pipeline.EngineOption, error) {
	resolver, err := textenc.NewResolver(cfg.File.EncodingNames()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidEncoding, err)
	}
	registry := adapter.Registry(adapter.Settings{
		Resolver: resolver,
		Plugins:  cfg.File.PluginTable(),
		Danger:   cfg.File.DangerPolicy(),
	})

	adapters := make([]adapter.Adapter, 0, len(registry))
	tables := make(map[model.Family]config.ColumnTable, len(registry))
	for _, f := range model.AllFamilies() {
		adapters = append(adapters, registry[f])
		tables[f] = cfg.File.ColumnTable(f)
	}

	return []pipeline.EngineOption{
		pipeline.WithEngineLogger(logger),
		pipeline.WithWorkers(cfg.Concurrency),
		pipeline.WithAdapters(adapters...),
		pipeline.WithColumnTables(tables),
		pipeline.WithVocabulary(cfg.File.Vocabulary()),
		pipeline.WithArtifacts(report.DefaultArtifacts(cfg.WorkbookName)...),
	}, nil
}

// runMerge executes one merge run and prints its report to stdout.
func runMerge(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	threshold, err := merge.ParseThreshold(cfg.MinRisk)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidMinRisk, err)
	}

	opts, err := engineOptions(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Debug("database opened", "path", db.Path())
		opts = append(opts, pipeline.WithHistory(db))
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	logger.Info("starting merge",
		"files", cfg.InputCount(),
		"output", cfg.OutputDir,
		"minRisk", threshold.String(),
		"concurrency", cfg.Concurrency,
		"saveToDB", cfg.SaveToDB,
	)

	result, err := pipeline.Run(ctx, pipeline.Request{
		Inputs:     cfg.Inputs,
		OutputDir:  cfg.OutputDir,
		MinRisk:    threshold,
		Accumulate: cfg.Accumulate,
	}, opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("merge did not finish within %s: %w", cfg.Timeout, err)
		}
		return err
	}

	if cfg.MetricsFile != "" {
		if err := writeMetrics(cfg.MetricsFile, result); err != nil {
			logger.Error("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	if err := outputReport(cfg, result, stdout); err != nil {
		return err
	}
	if !cfg.JSONReport && !cfg.MarkdownReport && cfg.ReportFile == "" {
		fmt.Fprintf(stdout, "Workbook written to %s\n", cfg.WorkbookPath())
	}
	return nil
}

// writeMetrics writes the run statistics in the Prometheus text format.
func writeMetrics(path string, result *model.BatchResult) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	rec := metrics.NewRecorder()
	rec.Observe(result)
	return rec.WriteTextfile(path)
}

// outputReport prints the run report in the requested format.
func outputReport(cfg *config.Config, result *model.BatchResult, stdout io.Writer) error {
	outputs := []io.Writer{stdout}
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports quote scanner evidence, so they are only readable by the owner
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		outputs = []io.Writer{f}
		if cfg.Tee {
			outputs = append(outputs, stdout)
		}
	}

	writers := make([]report.Writer, 0, len(outputs))
	for _, output := range outputs {
		writers = append(writers, reportWriter(cfg, output))
	}
	_, err := report.NewMultiWriter(writers...).Write(result)
	return err
}

// reportWriter returns the writer for the requested report format.
func reportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output, report.WithMaxFindings(maxMarkdownFindings))
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}

// maxMarkdownFindings keeps the Markdown summary readable; the workbook has
// every record.
const maxMarkdownFindings = 200
