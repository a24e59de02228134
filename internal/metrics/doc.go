// Package metrics defines the Recorder abstraction for dispatch and build
// observability, with a no-op default and a Prometheus implementation.
package metrics
