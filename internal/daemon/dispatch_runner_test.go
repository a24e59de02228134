package daemon

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smoyen/buildhook/internal/dispatch"
	"github.com/smoyen/buildhook/internal/eventstore"
	"github.com/smoyen/buildhook/internal/gituri"
	"github.com/smoyen/buildhook/internal/registry"
)

type recordingStore struct {
	eventstore.NopStore
	mu    sync.Mutex
	types []string
}

func (s *recordingStore) Append(_ context.Context, _, eventType string, _ []byte, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, eventType)
	return nil
}

type recordingAnnouncer struct {
	calls int
}

func (a *recordingAnnouncer) AnnounceDispatch(context.Context, dispatch.PushEvent, *dispatch.Result) error {
	a.calls++
	return nil
}
func (a *recordingAnnouncer) Close() error { return nil }

type nopBuildScheduler struct{}

func (nopBuildScheduler) ScheduleBuild(context.Context, *registry.Job, time.Duration, dispatch.Cause) error {
	return nil
}

type nopPushRunner struct{}

func (nopPushRunner) Execute(context.Context, *registry.Job, dispatch.PushEvent, bool) error {
	return nil
}

func TestDispatchRunner_RecordsAndAnnounces(t *testing.T) {
	store := &recordingStore{}
	announcer := &recordingAnnouncer{}

	job := &registry.Job{
		Name:     "ci-main",
		SCM:      registry.SCMConfig{Kind: registry.SCMGit, Remotes: []string{"https://example.com/org/repo.git"}},
		Triggers: []registry.Trigger{{Kind: registry.TriggerPoll}},
	}
	engine := dispatch.New(
		registry.StaticView{Jobs: []*registry.Job{job}},
		dispatch.GlobalConfigFunc(func() bool { return false }),
		nopBuildScheduler{},
		nopPushRunner{},
		dispatch.Options{},
	)

	runner := &dispatchRunner{
		dispatcher: engine,
		events:     store,
		announcer:  announcer,
		logger:     slog.Default(),
	}

	u, err := gituri.Parse("https://example.com/org/repo.git")
	require.NoError(t, err)

	result, err := runner.Dispatch(context.Background(), dispatch.PushEvent{CommitID: "abc", RepositoryURI: u}, false)
	require.NoError(t, err)
	require.Equal(t, []string{"Scheduled build of ci-main"}, result.Messages)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Equal(t, []string{eventstore.TypeDispatchReceived, eventstore.TypeDispatchCompleted}, store.types)
	require.Equal(t, 1, announcer.calls)
}
