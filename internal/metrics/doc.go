// Package metrics exports run statistics in the Prometheus text format.
//
// A Recorder owns its registry, so a run can be snapshotted to a textfile
// for the node exporter textfile collector without a long-lived server.
package metrics
