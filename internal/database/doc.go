// Package database provides SQLite-based run history for vulnmerge.
//
// This package implements the HistoryDB, which stores:
//   - One row per merge run with its counts and risk summary
//   - The families each run covered
//   - Every merged record of a run, keyed by its merge fingerprint
//
// The history serves two features: accumulating findings across runs, and
// comparing two runs.
//
// The database is a single SQLite file (modernc.org/sqlite, no cgo) opened in
// WAL mode.
package database
