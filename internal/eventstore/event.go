package eventstore

import "time"

// Event types recorded by the dispatch engine and the build queue.
const (
	TypeDispatchReceived  = "dispatch.received"
	TypeDispatchCompleted = "dispatch.completed"
	TypeBuildScheduled    = "build.scheduled"
	TypeBuildStarted      = "build.started"
	TypeBuildCompleted    = "build.completed"
	TypeBuildFailed       = "build.failed"
)

// Event is one recorded dispatch or build lifecycle event. ScopeID groups
// events belonging to the same dispatch or build job.
type Event struct {
	ID        int64             `json:"id"`
	ScopeID   string            `json:"scope_id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   []byte            `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
