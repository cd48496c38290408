package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration. Match them with
// errors.Is; Validate may wrap them with the offending value.
var (
	// ErrNoInput is returned when no input file was given for any family.
	ErrNoInput = errors.New("no input specified: provide at least one of --host, --web, --vulnmgmt or --port")

	// ErrNoOutputDir is returned when the output directory is empty.
	ErrNoOutputDir = errors.New("no output directory specified")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the number of parallel parses
	// is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one stdout report format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMinRisk is returned when --min-risk is not a known level.
	ErrInvalidMinRisk = errors.New("invalid min risk: must be one of Info, Low, Medium, High, Critical, Unknown")

	// ErrAccumulateWithoutHistory is returned when --accumulate is used while
	// history storage is disabled. Accumulation reloads the previous run from
	// the history database.
	ErrAccumulateWithoutHistory = errors.New("--accumulate requires run history: remove --no-history")

	// ErrInvalidEncoding is returned when the config file names an encoding
	// that cannot be resolved.
	ErrInvalidEncoding = errors.New("invalid encoding name in configuration file")

	// ErrInvalidRiskToken is returned when a risk token in the config file maps
	// to an unknown level.
	ErrInvalidRiskToken = errors.New("invalid risk token in configuration file")
)
