// Package normalize turns raw source rows into canonical records.
//
// ColumnMapper binds source headers to canonical fields using a static
// synonym table, RiskNormalizer maps risk labels onto the ordinal severity
// scale and Builder assembles a model.Record from a mapped row. Nothing in
// this package sniffs content: every decision is table driven and
// deterministic for a given input.
package normalize
