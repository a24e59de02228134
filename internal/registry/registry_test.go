package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smoyen/buildhook/internal/errors"
	"github.com/smoyen/buildhook/internal/identity"
)

const sampleRegistry = `
jobs:
  - name: ci-main
    scm:
      kind: git
      remotes:
        - git@example.com:org/repo.git
    quiet_period: 5
    triggers:
      - kind: poll
  - name: internal-tool
    private: true
    scm:
      kind: git
      remotes:
        - https://example.com/org/tool.git
  - name: manual-only
    scm:
      kind: none
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileRegistry_Load(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)

	r, err := NewFileRegistry(path)
	require.NoError(t, err)

	ctx := identity.WithIdentity(context.Background(), identity.System())
	jobs, err := r.AllJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	main := jobs[0]
	require.Equal(t, "ci-main", main.Name)
	require.True(t, main.IsGit())
	require.Equal(t, 5, main.QuietPeriodSeconds)
	require.NotNil(t, main.FindTrigger(TriggerPoll))
	require.Nil(t, main.FindTrigger(TriggerPush))
}

func TestFileRegistry_PrivateJobsHiddenFromAnonymous(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)

	r, err := NewFileRegistry(path)
	require.NoError(t, err)

	jobs, err := r.AllJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		require.NotEqual(t, "internal-tool", j.Name)
	}

	elevated := identity.WithIdentity(context.Background(), identity.System())
	jobs, err = r.AllJobs(elevated)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
}

func TestFileRegistry_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing name", "jobs:\n  - scm: {kind: git}\n"},
		{"duplicate name", "jobs:\n  - name: a\n    scm: {kind: git}\n  - name: a\n    scm: {kind: git}\n"},
		{"negative quiet period", "jobs:\n  - name: a\n    quiet_period: -1\n    scm: {kind: git}\n"},
		{"unknown trigger kind", "jobs:\n  - name: a\n    scm: {kind: git}\n    triggers: [{kind: cron}]\n"},
		{"duplicate trigger kind", "jobs:\n  - name: a\n    scm: {kind: git}\n    triggers: [{kind: poll}, {kind: poll}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRegistry(t, tt.content)
			_, err := NewFileRegistry(path)
			require.Error(t, err)
		})
	}
}

func TestFileRegistry_LoadKeepsPreviousSnapshotOnFailure(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)

	r, err := NewFileRegistry(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("jobs: [{scm: {kind: git}}]"), 0o644))
	err = r.Load()
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryValidation))

	ctx := identity.WithIdentity(context.Background(), identity.System())
	jobs, err := r.AllJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3, "previous snapshot must survive a failed reload")
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)

	r, err := NewFileRegistry(path)
	require.NoError(t, err)

	w, err := NewWatcher(r)
	require.NoError(t, err)
	w.debounceTime = 20 * time.Millisecond

	reloaded := make(chan struct{}, 1)
	w.OnReload(func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	updated := sampleRegistry + `
  - name: extra
    scm:
      kind: git
      remotes:
        - https://example.com/org/extra.git
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for registry reload")
	}

	elevated := identity.WithIdentity(context.Background(), identity.System())
	jobs, err := r.AllJobs(elevated)
	require.NoError(t, err)
	require.Len(t, jobs, 4)
}
