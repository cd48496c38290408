package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nao1215/vulnmerge/internal/model"
)

// Writer defines the interface for report output.
// Implementations write batch results in various formats.
type Writer interface {
	// Write outputs the result to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(result *model.BatchResult) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the result to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(result *model.BatchResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// Artifact is one file written into the output directory.
type Artifact struct {
	// FileName is the base name of the file.
	FileName string
	// NewWriter returns the writer that renders the file.
	NewWriter func(io.Writer) Writer
}

// artifactPerm is the mode of every file written into the output directory.
const artifactPerm os.FileMode = 0o600

// Default artifact file names.
const (
	DefaultJSONName = "vulnmerge.json"
)

// DefaultArtifacts returns the workbook and the JSON dump.
func DefaultArtifacts(workbookName string) []Artifact {
	return []Artifact{
		{
			FileName:  workbookName,
			NewWriter: func(w io.Writer) Writer { return NewXLSXWriter(w) },
		},
		{
			FileName:  DefaultJSONName,
			NewWriter: func(w io.Writer) Writer { return NewJSONWriter(w, WithPrettyPrint()) },
		},
	}
}

// WriteArtifacts renders every artifact into dir, creating it if needed.
// It returns the paths written before the first failure.
func WriteArtifacts(dir string, result *model.BatchResult, artifacts ...Artifact) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	written := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		path := filepath.Join(dir, a.FileName)
		err := WriteFileAtomic(path, func(w io.Writer) error {
			_, err := a.NewWriter(w).Write(result)
			return err
		})
		if err != nil {
			return written, fmt.Errorf("failed to write %s: %w", a.FileName, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// WriteFileAtomic writes a file through a temporary file in the same
// directory and renames it into place. On failure the target is untouched.
// The file is readable by the owner only, since artifacts carry scanner
// evidence.
func WriteFileAtomic(path string, write func(w io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), artifactPerm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
