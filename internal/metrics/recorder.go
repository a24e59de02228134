package metrics

import "time"

// Recorder defines observability hooks for dispatch and build metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. The
// NoopRecorder allows optional injection.
type Recorder interface {
	IncEventsReceived()
	IncJobsScanned(n int)
	IncRepositoryMatches(n int)
	IncOutcome(kind string) // kind: scheduled_immediate|scheduled_via_poll|custom_handled|skipped
	ObserveDispatchDuration(d time.Duration)
	ObserveBuildDuration(job string, d time.Duration, success bool)
	IncBuildOutcome(success bool)
	SetQueueLength(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncEventsReceived()                               {}
func (NoopRecorder) IncJobsScanned(int)                               {}
func (NoopRecorder) IncRepositoryMatches(int)                         {}
func (NoopRecorder) IncOutcome(string)                                {}
func (NoopRecorder) ObserveDispatchDuration(time.Duration)            {}
func (NoopRecorder) ObserveBuildDuration(string, time.Duration, bool) {}
func (NoopRecorder) IncBuildOutcome(bool)                             {}
func (NoopRecorder) SetQueueLength(int)                               {}
