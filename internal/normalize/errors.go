package normalize

import (
	"errors"
	"strings"
)

// SchemaMappingError is returned when not a single header of a table could
// be bound to a canonical field.
type SchemaMappingError struct {
	Headers []string
}

func (e *SchemaMappingError) Error() string {
	return "no column could be mapped to a known field (headers: " + strings.Join(e.Headers, ", ") + ")"
}

var (
	// ErrMissingName is returned for a row without a vulnerability name.
	ErrMissingName = errors.New("row has no vulnerability name")

	// ErrInvalidPort is returned when the port cell holds something other
	// than a single port number.
	ErrInvalidPort = errors.New("invalid port")
)
