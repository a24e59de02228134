package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smoyen/buildhook/internal/gituri"
	"github.com/smoyen/buildhook/internal/logfields"
	"github.com/smoyen/buildhook/internal/registry"
)

type scheduleCall struct {
	Job         string
	QuietPeriod time.Duration
	Cause       Cause
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduleCall
	err   error
}

func (f *fakeScheduler) ScheduleBuild(_ context.Context, job *registry.Job, quietPeriod time.Duration, cause Cause) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, scheduleCall{Job: job.Name, QuietPeriod: quietPeriod, Cause: cause})
	return nil
}

type runnerCall struct {
	Job    string
	Bypass bool
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []runnerCall
	err   error
}

func (f *fakeRunner) Execute(_ context.Context, job *registry.Job, _ PushEvent, bypassPolling bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, runnerCall{Job: job.Name, Bypass: bypassPolling})
	return nil
}

type failingRegistry struct{}

func (failingRegistry) AllJobs(context.Context) ([]*registry.Job, error) {
	return nil, errors.New("host runtime not ready")
}

// recordingHandler captures slog records for diagnostic assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) attr(msg, key string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.Message != msg {
			continue
		}
		var out string
		found := false
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == key {
				out = a.Value.String()
				found = true
				return false
			}
			return true
		})
		if found {
			return out, true
		}
	}
	return "", false
}

func (h *recordingHandler) count(level slog.Level, msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level && r.Message == msg {
			n++
		}
	}
	return n
}

func mustParse(t *testing.T, raw string) gituri.URI {
	t.Helper()
	u, err := gituri.Parse(raw)
	require.NoError(t, err)
	return u
}

func testEvent(t *testing.T) PushEvent {
	return PushEvent{
		CommitID:      "abc123",
		RepositoryURI: mustParse(t, "https://example.com/org/repo.git"),
	}
}

type fixture struct {
	dispatcher *Dispatcher
	scheduler  *fakeScheduler
	runner     *fakeRunner
	logs       *recordingHandler
}

func newFixture(t *testing.T, jobs []*registry.Job, globalAuto bool) *fixture {
	t.Helper()
	sched := &fakeScheduler{}
	runner := &fakeRunner{}
	logs := &recordingHandler{}
	d := New(
		registry.StaticView{Jobs: jobs},
		GlobalConfigFunc(func() bool { return globalAuto }),
		sched,
		runner,
		Options{Logger: slog.New(logs), DefaultQuietPeriod: 5 * time.Second},
	)
	return &fixture{dispatcher: d, scheduler: sched, runner: runner, logs: logs}
}

func gitJob(name string, remotes ...string) *registry.Job {
	return &registry.Job{
		Name: name,
		SCM:  registry.SCMConfig{Kind: registry.SCMGit, Remotes: remotes},
	}
}

func TestDispatch_GlobalAutoSchedulesViaPoll(t *testing.T) {
	job := gitJob("ci-main", "git@example.com:org/repo.git")
	other := gitJob("unrelated", "git@example.com:org/other.git")
	f := newFixture(t, []*registry.Job{job, other}, true)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	require.Equal(t, OutcomeScheduledViaPoll, res.Outcomes[0].Kind)
	require.Equal(t, "ci-main", res.Outcomes[0].JobName)
	require.Equal(t, []string{"Scheduled polling of ci-main"}, res.Messages)
	require.Equal(t, 1, res.MatchedRepositories)

	require.Len(t, f.runner.calls, 1)
	require.False(t, f.runner.calls[0].Bypass)
	require.Empty(t, f.scheduler.calls, "global auto must not also queue directly")
}

func TestDispatch_GlobalAutoWithBypassSchedulesImmediate(t *testing.T) {
	job := gitJob("ci-main", "git@example.com:org/repo.git")
	f := newFixture(t, []*registry.Job{job}, true)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), true)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	require.Equal(t, OutcomeScheduledImmediate, res.Outcomes[0].Kind)
	require.Equal(t, []string{"Scheduled build of ci-main"}, res.Messages)
	require.True(t, f.runner.calls[0].Bypass)
}

func TestDispatch_DisabledJobNeverTriggers(t *testing.T) {
	job := gitJob("ci-main", "git@example.com:org/repo.git")
	job.Disabled = true
	job.Triggers = []registry.Trigger{{Kind: registry.TriggerPoll}}
	f := newFixture(t, []*registry.Job{job}, true)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	require.Equal(t, OutcomeSkipped, res.Outcomes[0].Kind)
	require.Equal(t, SkipJobDisabled, res.Outcomes[0].Reason)
	require.Empty(t, res.Messages, "skips are not rendered")
	require.Equal(t, 1, res.MatchedRepositories, "the match still counts")
	require.Empty(t, f.runner.calls)
	require.Empty(t, f.scheduler.calls)
}

func TestDispatch_OptedOutRemoteNeverTriggers(t *testing.T) {
	job := gitJob("ci-main", "git@example.com:org/repo.git")
	job.SCM.IgnoreNotifyPush = true
	job.Triggers = []registry.Trigger{{Kind: registry.TriggerPoll}}
	f := newFixture(t, []*registry.Job{job}, true)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	require.Equal(t, OutcomeSkipped, res.Outcomes[0].Kind)
	require.Equal(t, SkipHooksIgnored, res.Outcomes[0].Reason)
	require.Empty(t, f.runner.calls)
	require.Empty(t, f.scheduler.calls)
}

func TestDispatch_NoGitJobs(t *testing.T) {
	manual := &registry.Job{Name: "manual", SCM: registry.SCMConfig{Kind: registry.SCMNone}}
	f := newFixture(t, []*registry.Job{manual}, true)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Equal(t, []string{NoGitJobsMessage}, res.Messages)
	require.Empty(t, res.Outcomes)
	require.False(t, res.GitJobsFound)
}

func TestDispatch_NoMatchIsSilentButLogged(t *testing.T) {
	job := gitJob("ci-main", "git@example.com:org/other.git")
	f := newFixture(t, []*registry.Job{job}, true)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Empty(t, res.Messages)
	require.Empty(t, res.Outcomes)
	require.True(t, res.GitJobsFound)
	require.Equal(t, 0, res.MatchedRepositories)
	require.Equal(t, 1, f.logs.count(slog.LevelWarn, "No git jobs matched the remote URL requested by an event"))
}

func TestDispatch_PrecedenceGlobalWinsOverExplicitPoll(t *testing.T) {
	job := gitJob("ci-main", "git@example.com:org/repo.git")
	job.Triggers = []registry.Trigger{{Kind: registry.TriggerPoll}}
	f := newFixture(t, []*registry.Job{job}, true)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1, "exactly one outcome, never two")
	require.Equal(t, OutcomeScheduledViaPoll, res.Outcomes[0].Kind)
	require.Len(t, f.runner.calls, 1)
	require.Empty(t, f.scheduler.calls)
}

func TestDispatch_ExplicitPollQueuesDirectly(t *testing.T) {
	job := gitJob("ci-main", "git@example.com:org/repo.git")
	job.QuietPeriodSeconds = 7
	job.Triggers = []registry.Trigger{{Kind: registry.TriggerPoll}}
	f := newFixture(t, []*registry.Job{job}, false)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	require.Equal(t, OutcomeScheduledImmediate, res.Outcomes[0].Kind)
	require.Equal(t, []string{"Scheduled build of ci-main"}, res.Messages)

	require.Len(t, f.scheduler.calls, 1)
	call := f.scheduler.calls[0]
	require.Equal(t, "ci-main", call.Job)
	require.Equal(t, 7*time.Second, call.QuietPeriod)
	require.Equal(t, "abc123", call.Cause.Commit)
	require.Empty(t, f.runner.calls)
}

func TestDispatch_PollOptOutFallsThroughToCustomTrigger(t *testing.T) {
	job := gitJob("ci-main", "git@example.com:org/repo.git")
	job.Triggers = []registry.Trigger{
		{Kind: registry.TriggerPoll, IgnoreHooks: true},
		{Kind: registry.TriggerPush},
	}
	f := newFixture(t, []*registry.Job{job}, false)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	require.Equal(t, OutcomeCustomHandled, res.Outcomes[0].Kind)
	require.Equal(t, []string{"Scheduled polling of ci-main"}, res.Messages)
	require.Len(t, f.runner.calls, 1)
	require.Empty(t, f.scheduler.calls)
}

func TestDispatch_PollOptOutUnderGlobalAutoFallsThrough(t *testing.T) {
	job := gitJob("ci-main", "git@example.com:org/repo.git")
	job.Triggers = []registry.Trigger{{Kind: registry.TriggerPoll, IgnoreHooks: true}}
	f := newFixture(t, []*registry.Job{job}, true)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	require.Equal(t, OutcomeSkipped, res.Outcomes[0].Kind)
	require.Equal(t, SkipNoTriggerConfigured, res.Outcomes[0].Reason)
}

func TestDispatch_NoTriggerConfigured(t *testing.T) {
	job := gitJob("ci-main", "git@example.com:org/repo.git")
	f := newFixture(t, []*registry.Job{job}, false)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	require.Equal(t, OutcomeSkipped, res.Outcomes[0].Kind)
	require.Equal(t, SkipNoTriggerConfigured, res.Outcomes[0].Reason)
	require.Empty(t, res.Messages)
}

func TestDispatch_FirstMatchingRemoteWins(t *testing.T) {
	job := gitJob("ci-main",
		"https://example.com/org/repo.git",
		"git@example.com:org/repo.git",
	)
	job.Triggers = []registry.Trigger{{Kind: registry.TriggerPoll}}
	f := newFixture(t, []*registry.Job{job}, false)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	// Two remotes independently match, but only one outcome is produced
	// and the match is counted once.
	require.Len(t, res.Outcomes, 1)
	require.Equal(t, 1, res.MatchedRepositories)
	require.Len(t, f.scheduler.calls, 1)
}

func TestDispatch_NoDeduplicationAcrossDispatches(t *testing.T) {
	job := gitJob("ci-main", "git@example.com:org/repo.git")
	job.Triggers = []registry.Trigger{{Kind: registry.TriggerPoll}}
	f := newFixture(t, []*registry.Job{job}, false)

	_, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)
	_, err = f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Len(t, f.scheduler.calls, 2, "each dispatch schedules independently")
}

func TestDispatch_RegistryUnavailableIsRecovered(t *testing.T) {
	logs := &recordingHandler{}
	d := New(
		failingRegistry{},
		GlobalConfigFunc(func() bool { return false }),
		&fakeScheduler{},
		&fakeRunner{},
		Options{Logger: slog.New(logs)},
	)

	res, err := d.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err, "callers never see a fatal failure")
	require.Empty(t, res.Messages)
	require.Empty(t, res.Outcomes)
	require.Equal(t, 1, logs.count(slog.LevelError, "Job registry unavailable"))
}

func TestDispatch_TriggerFailureAbortsScan(t *testing.T) {
	first := gitJob("first", "git@example.com:org/repo.git")
	first.Triggers = []registry.Trigger{{Kind: registry.TriggerPoll}}
	second := gitJob("second", "https://example.com/org/repo.git")
	second.Triggers = []registry.Trigger{{Kind: registry.TriggerPoll}}

	f := newFixture(t, []*registry.Job{first, second}, false)
	f.scheduler.err = errors.New("queue rejected the job")

	_, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.Error(t, err, "a single job's failure aborts the remainder of the scan")
}

func TestDispatch_CrossSchemeMatchSchedulesOnlyTheMatchedJob(t *testing.T) {
	// JobA: enabled, SSH remote for the pushed repo, explicit poll trigger,
	// global auto disabled. JobB: unrelated remote.
	jobA := gitJob("JobA", "git@example.com:org/repo.git")
	jobA.Triggers = []registry.Trigger{{Kind: registry.TriggerPoll}}
	jobB := gitJob("JobB", "git@example.com:org/unrelated.git")
	f := newFixture(t, []*registry.Job{jobA, jobB}, false)

	res, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Equal(t, 1, res.MatchedRepositories)
	require.Len(t, res.Outcomes, 1)
	require.Equal(t, OutcomeScheduledImmediate, res.Outcomes[0].Kind)
	require.Equal(t, "JobA", res.Outcomes[0].JobName)
	require.Equal(t, []string{"Scheduled build of JobA"}, res.Messages)
	require.Len(t, f.scheduler.calls, 1)
	require.Equal(t, "JobA", f.scheduler.calls[0].Job)
}

func TestDispatch_ScanLogsTheElevatedIdentity(t *testing.T) {
	job := gitJob("ci-main", "git@example.com:org/repo.git")
	f := newFixture(t, []*registry.Job{job}, true)

	_, err := f.dispatcher.Dispatch(context.Background(), testEvent(t), false)
	require.NoError(t, err)

	require.Equal(t, 1, f.logs.count(slog.LevelDebug, "Scanning job registry"))
	id, ok := f.logs.attr("Scanning job registry", logfields.KeyIdentity)
	require.True(t, ok)
	require.Equal(t, "system", id)
}

func TestResult_ScheduledFiltersSkips(t *testing.T) {
	res := &Result{Outcomes: []Outcome{
		{JobName: "a", Kind: OutcomeScheduledImmediate},
		{JobName: "b", Kind: OutcomeSkipped, Reason: SkipJobDisabled},
	}}
	scheduled := res.Scheduled()
	require.Len(t, scheduled, 1)
	require.Equal(t, "a", scheduled[0].JobName)
}
