package dispatch

// OutcomeKind is the closed set of per-job dispatch results.
type OutcomeKind string

const (
	// OutcomeScheduledImmediate means a build was queued directly, without a poll step.
	OutcomeScheduledImmediate OutcomeKind = "scheduled_immediate"
	// OutcomeScheduledViaPoll means a poll of the repository was scheduled,
	// which queues a build when changes are found.
	OutcomeScheduledViaPoll OutcomeKind = "scheduled_via_poll"
	// OutcomeCustomHandled means the job's custom push trigger took over.
	OutcomeCustomHandled OutcomeKind = "custom_handled"
	// OutcomeSkipped means the matched job was deliberately not triggered.
	OutcomeSkipped OutcomeKind = "skipped"
)

// SkipReason explains an OutcomeSkipped.
type SkipReason string

const (
	SkipJobDisabled         SkipReason = "job_disabled"
	SkipHooksIgnored        SkipReason = "hooks_ignored"
	SkipNoTriggerConfigured SkipReason = "no_trigger_configured"
)

// Outcome is the decision taken for one matched job. At most one
// non-skipped outcome exists per job per dispatch.
type Outcome struct {
	JobName string
	Kind    OutcomeKind
	Reason  SkipReason // set only when Kind is OutcomeSkipped
	// bypassPolling controls how a custom-handled outcome renders.
	bypassPolling bool
}

// Result aggregates one dispatch: scan-level signals, every per-job outcome
// in scan order, and the rendered messages for the caller. Skipped outcomes
// are retained in Outcomes but never rendered into Messages.
type Result struct {
	GitJobsFound        bool
	MatchedRepositories int
	Outcomes            []Outcome
	Messages            []string
}

// Scheduled returns the non-skipped outcomes.
func (r *Result) Scheduled() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Kind != OutcomeSkipped {
			out = append(out, o)
		}
	}
	return out
}
