// Package errors provides classified error primitives used across buildhook.
//
// It contains a structured error type with category, severity, and retry
// classification, a fluent builder API for constructing values with context,
// and adapters for presenting errors over HTTP and on the CLI.
package errors
