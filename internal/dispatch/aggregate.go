package dispatch

import (
	"fmt"

	"github.com/smoyen/buildhook/internal/logfields"
)

// NoGitJobsMessage is the fixed response when the registry holds no
// git-capable jobs at all.
const NoGitJobsMessage = "No git jobs found"

// aggregate renders the per-job outcomes into the ordered result. Skipped
// outcomes are kept for counting but never rendered. When git jobs exist and
// none matched, the response stays silent and a warning is logged instead
// of a message.
func (d *Dispatcher) aggregate(event PushEvent, gitJobsFound bool, matched int, outcomes []Outcome) *Result {
	result := &Result{
		GitJobsFound:        gitJobsFound,
		MatchedRepositories: matched,
		Outcomes:            outcomes,
	}

	if !gitJobsFound {
		result.Messages = []string{NoGitJobsMessage}
		result.Outcomes = nil
		return result
	}

	if matched == 0 {
		d.logger.Warn("No git jobs matched the remote URL requested by an event",
			logfields.EventURI(event.RepositoryURI.String()))
		return result
	}

	for _, o := range outcomes {
		if msg, ok := renderOutcome(o); ok {
			result.Messages = append(result.Messages, msg)
		}
	}
	return result
}

func renderOutcome(o Outcome) (string, bool) {
	switch o.Kind {
	case OutcomeScheduledImmediate:
		return fmt.Sprintf("Scheduled build of %s", o.JobName), true
	case OutcomeScheduledViaPoll:
		return fmt.Sprintf("Scheduled polling of %s", o.JobName), true
	case OutcomeCustomHandled:
		if o.bypassPolling {
			return fmt.Sprintf("Scheduled build of %s", o.JobName), true
		}
		return fmt.Sprintf("Scheduled polling of %s", o.JobName), true
	default:
		return "", false
	}
}
