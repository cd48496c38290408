package pipeline

import "errors"

// ErrNothingParsed is returned when no input file of any requested family
// could be read. It is the only fatal outcome of a run; every other problem
// becomes a warning in the batch result.
var ErrNothingParsed = errors.New("no input file could be parsed")

// ErrNoAdapter is returned for a family that has no registered adapter.
var ErrNoAdapter = errors.New("no adapter registered for family")
