// Package merge deduplicates, filters and orders canonical records.
//
// Merge groups records by a family scoped key and folds every group into one
// record. Folding is a join: severity takes the maximum, sets take the union and
// time ranges widen, while description and remediation come from the earliest
// contributing row by (file, row). Because none of that depends on the order
// records arrive in, merging the output again changes nothing.
//
// Filter applies the minimum risk threshold and Assemble gives the result its
// reporting order and sequence numbers.
package merge
