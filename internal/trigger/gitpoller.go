package trigger

import (
	"context"
	"sync"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	apperrors "github.com/smoyen/buildhook/internal/errors"
	"github.com/smoyen/buildhook/internal/registry"
)

// RemotePoller checks a job's remotes for new commits.
type RemotePoller interface {
	// Poll reports whether the job's remote heads moved since the last
	// poll. The first poll of a job always reports a change.
	Poll(ctx context.Context, job *registry.Job) (bool, error)
}

// GitPoller lists remote references without cloning and compares branch
// heads against the previous poll.
type GitPoller struct {
	mu    sync.Mutex
	heads map[string]map[string]string // job name -> ref name -> hash
	list  func(ctx context.Context, remotes []string) (map[string]string, error)
}

func NewGitPoller() *GitPoller {
	return &GitPoller{
		heads: make(map[string]map[string]string),
		list:  listBranchHeads,
	}
}

func (p *GitPoller) Poll(ctx context.Context, job *registry.Job) (bool, error) {
	current, err := p.list(ctx, job.SCM.Remotes)
	if err != nil {
		return false, apperrors.WrapError(err, apperrors.CategoryGit, "failed to poll remote").
			WithContext("job", job.Name).
			Retryable().
			Build()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	previous, seen := p.heads[job.Name]
	p.heads[job.Name] = current

	if !seen {
		// A push notification arrived, so a change is assumed until a
		// baseline exists.
		return true, nil
	}
	if len(current) != len(previous) {
		return true, nil
	}
	for ref, hash := range current {
		if previous[ref] != hash {
			return true, nil
		}
	}
	return false, nil
}

func listBranchHeads(ctx context.Context, remotes []string) (map[string]string, error) {
	remote := git.NewRemote(memory.NewStorage(), &gitcfg.RemoteConfig{
		Name: "origin",
		URLs: remotes,
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return nil, err
	}

	heads := make(map[string]string)
	for _, ref := range refs {
		if ref.Type() == plumbing.SymbolicReference {
			continue
		}
		name := ref.Name()
		if !name.IsBranch() {
			continue
		}
		heads[name.String()] = ref.Hash().String()
	}
	return heads, nil
}
