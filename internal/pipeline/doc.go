// Package pipeline runs a merge batch from input files to assembled results.
//
// A run is a sequence of steps sharing one RunState: parse, accumulate,
// merge, filter, assemble, persist and output. Parsing fans out over the
// input files on a bounded errgroup; every later step runs after that barrier
// on the complete record set, so merging never sees a partial family.
//
// Optional stages (history, artifacts) are added or left out when the Engine
// is built.
package pipeline
