// Package queue holds the build work queue: scheduled builds wait out their
// quiet period, then run on a fixed worker pool.
package queue

import (
	"context"
	"time"

	"github.com/smoyen/buildhook/internal/dispatch"
)

// BuildStatus represents the current status of a queued build.
type BuildStatus string

const (
	BuildStatusQueued    BuildStatus = "queued"
	BuildStatusWaiting   BuildStatus = "waiting" // quiet period in progress
	BuildStatusRunning   BuildStatus = "running"
	BuildStatusCompleted BuildStatus = "completed"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusCancelled BuildStatus = "canceled"
)

// Build represents a single scheduled build in the queue.
type Build struct {
	ID          string         `json:"id"`
	JobName     string         `json:"job_name"`
	Command     string         `json:"command,omitempty"`
	Status      BuildStatus    `json:"status"`
	Cause       dispatch.Cause `json:"cause"`
	QuietPeriod time.Duration  `json:"quiet_period,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration  `json:"duration,omitempty"`
	Output      string         `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`

	cancel context.CancelFunc
}
