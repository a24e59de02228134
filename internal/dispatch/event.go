// Package dispatch turns an inbound push event into build-scheduling actions
// across the configured job registry: it matches the event's repository
// against every job's remotes, picks exactly one trigger strategy per
// matched job, and aggregates the per-job outcomes into an ordered result.
package dispatch

import (
	"github.com/smoyen/buildhook/internal/gituri"
	"github.com/smoyen/buildhook/internal/registry"
)

// PushEvent is one parsed "code was pushed" notification. Immutable;
// created once per inbound request.
type PushEvent struct {
	CommitID      string
	RepositoryURI gituri.URI
}

// Cause records why a build was scheduled; it travels with the queued job.
type Cause struct {
	Commit        string               `json:"commit"`
	RepositoryURI string               `json:"repository_uri"`
	Trigger       registry.TriggerKind `json:"trigger"`
}
