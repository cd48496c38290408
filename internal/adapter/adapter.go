package adapter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nao1215/vulnmerge/internal/config"
	"github.com/nao1215/vulnmerge/internal/model"
	"github.com/nao1215/vulnmerge/internal/textenc"
)

// Document is one input file.
type Document struct {
	Path string
	Data []byte
}

// Ext returns the lower-case file extension of the document.
func (d Document) Ext() string {
	return strings.ToLower(filepath.Ext(d.Path))
}

// Table is one header row plus the rows below it.
type Table struct {
	Name    string
	Headers []string
	Rows    []model.RawRecord
	// Optional tables may fail column mapping without making the document a
	// placeholder. HTML reports contain many layout tables.
	Optional bool
}

// Parsed is the result of reading one document.
type Parsed struct {
	// Encoding is the character encoding used, empty for binary containers.
	Encoding string
	Tables   []Table
	// Warnings holds rows that could not be read.
	Warnings []model.Warning
}

// Adapter reads the documents of one scanner family.
type Adapter interface {
	// Family returns the scanner family this adapter reads.
	Family() model.Family
	// Parse reads a document into raw tables.
	Parse(ctx context.Context, doc Document) (*Parsed, error)
	// Refine adjusts a mapped row before it is built into a record.
	// Returning ErrRowFiltered drops the row without a warning.
	Refine(row *model.MappedRow) ([]model.Warning, error)
}

// ErrRowFiltered is returned by Refine for rows that are valid but not
// findings, such as closed ports.
var ErrRowFiltered = errors.New("row filtered")

// ErrUnsupportedFormat is returned for file extensions the adapter cannot read.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ParseError reports a malformed document or row. Row is zero when the whole
// document is unreadable.
type ParseError struct {
	File string
	Row  int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("%s: row %d: %v", e.File, e.Row, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Warning converts the error into a batch warning.
func (e *ParseError) Warning() model.Warning {
	kind := model.WarningParseFile
	if e.Row > 0 {
		kind = model.WarningParseRow
	}
	return model.Warning{Kind: kind, File: e.File, Row: e.Row, Message: e.Err.Error()}
}

// Settings carries what the adapters need from the configuration.
type Settings struct {
	Resolver *textenc.Resolver
	Plugins  map[string]config.PluginReference
	Danger   config.DangerPolicy
}

// DefaultSettings returns settings built from the defaults.
func DefaultSettings() Settings {
	r, _ := textenc.NewResolver()
	return Settings{
		Resolver: r,
		Plugins:  map[string]config.PluginReference{},
		Danger:   config.DefaultDangerPolicy(),
	}
}

// Registry returns one adapter per family.
func Registry(s Settings) map[model.Family]Adapter {
	return map[model.Family]Adapter{
		model.FamilyHost:     NewHostAdapter(s.Resolver),
		model.FamilyWeb:      NewWebAdapter(s.Resolver),
		model.FamilyVulnMgmt: NewVulnMgmtAdapter(s.Resolver, s.Plugins),
		model.FamilyPort:     NewPortAdapter(s.Resolver, s.Danger),
	}
}
