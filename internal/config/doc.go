// Package config provides the configuration structures for vulnmerge.
//
// Config is the flat run configuration filled from CLI flags. File is the
// optional YAML file that tunes the engine: the encoding ladder, column
// synonym tables per scanner family, extra risk tokens, the plugin reference
// table and the dangerous port list. The engine never reads globals; the CLI
// resolves a File into concrete tables and passes them in at construction.
package config
