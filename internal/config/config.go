package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/vulnmerge/internal/model"
)

// Default configuration values.
const (
	// DefaultTimeout bounds a whole merge run. Parsing a few hundred
	// spreadsheets takes seconds, so ten minutes only trips on a stuck input.
	DefaultTimeout = 10 * time.Minute

	// DefaultConcurrency is the number of files parsed in parallel.
	DefaultConcurrency = 4

	// DefaultOutputDir is used when --output is not given.
	DefaultOutputDir = "vulnmerge-output"

	// DefaultWorkbookName is the file name of the xlsx workbook.
	DefaultWorkbookName = "vulnmerge.xlsx"

	// AppName is the application name used for XDG directory paths.
	AppName = "vulnmerge"
)

// Config holds all configuration options for a merge run.
// It is populated from CLI flags and passed through the application via
// dependency injection rather than global state.
type Config struct {
	// Inputs lists the files to ingest, per scanner family.
	Inputs map[model.Family][]string

	// OutputDir is the directory the workbook and optional exports go to.
	// It is created if it does not exist.
	OutputDir string

	// WorkbookName is the xlsx file name inside OutputDir.
	WorkbookName string

	// MinRisk is the threshold label. Empty keeps every record.
	MinRisk string

	// Concurrency is the number of files parsed in parallel.
	Concurrency int

	// Timeout bounds the whole run. In-flight parses are discarded when it
	// expires.
	Timeout time.Duration

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// LogJSON writes log lines as JSON objects instead of text.
	LogJSON bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .vulnmerge in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// File holds the settings loaded from the configuration file.
	File *File

	// JSONReport prints the run report as JSON instead of the text summary.
	JSONReport bool

	// MarkdownReport prints the run report as Markdown instead of the text summary.
	MarkdownReport bool

	// ReportFile is the output file path for the printed report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// Tee also prints the report to stdout when ReportFile is set.
	Tee bool

	// DBDir is the directory path for storing the SQLite history database.
	// Defaults to the XDG data directory (~/.local/share/vulnmerge on Linux).
	DBDir string

	// SaveToDB indicates whether the run is stored in the history database.
	SaveToDB bool

	// Accumulate re-merges the records of the previous stored run with the
	// new input.
	Accumulate bool

	// MetricsFile, when set, receives run metrics in the Prometheus text format.
	MetricsFile string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Inputs:       make(map[model.Family][]string),
		OutputDir:    DefaultOutputDir,
		WorkbookName: DefaultWorkbookName,
		Concurrency:  DefaultConcurrency,
		Timeout:      DefaultTimeout,
		DBDir:        XDGDataDir(),
		SaveToDB:     true,
	}
}

// XDGDataDir returns the XDG data directory for vulnmerge.
// On Linux: ~/.local/share/vulnmerge
// On macOS: ~/Library/Application Support/vulnmerge
// On Windows: %LOCALAPPDATA%\vulnmerge
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// AddInputs appends paths to the input list of a family, skipping blanks.
func (c *Config) AddInputs(family model.Family, paths ...string) {
	if c.Inputs == nil {
		c.Inputs = make(map[model.Family][]string)
	}
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			c.Inputs[family] = append(c.Inputs[family], p)
		}
	}
}

// InputCount returns the number of input files over all families.
func (c *Config) InputCount() int {
	n := 0
	for _, paths := range c.Inputs {
		n += len(paths)
	}
	return n
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if c.InputCount() == 0 {
		return ErrNoInput
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return ErrNoOutputDir
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.MinRisk != "" {
		if _, err := model.ParseSeverityLabel(c.MinRisk); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidMinRisk, c.MinRisk)
		}
	}
	if c.Accumulate && !c.SaveToDB {
		return ErrAccumulateWithoutHistory
	}
	return nil
}

// WorkbookPath returns the full path of the xlsx workbook.
func (c *Config) WorkbookPath() string {
	name := c.WorkbookName
	if name == "" {
		name = DefaultWorkbookName
	}
	return filepath.Join(c.OutputDir, name)
}
