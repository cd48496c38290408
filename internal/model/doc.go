// Package model defines the data structures shared by every stage of vulnmerge.
//
// This package contains the following main types:
//   - RawRecord: one source row or markup entry, keyed by the source header
//   - MappedRow: a RawRecord after its headers were bound to canonical fields
//   - Record: the canonical vulnerability record produced by normalization
//   - Severity: the ordinal risk scale, including an Unknown sentinel
//   - BatchResult: everything a run produced, including warnings and file stats
//
// Every type round-trips through JSON; the history database stores records
// that way.
package model
