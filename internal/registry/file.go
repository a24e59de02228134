package registry

import (
	"context"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/smoyen/buildhook/internal/errors"
	"github.com/smoyen/buildhook/internal/identity"
)

// registryFile is the on-disk YAML shape.
type registryFile struct {
	Jobs []*Job `yaml:"jobs"`
}

// FileRegistry is a View backed by a YAML file. Load replaces the snapshot
// atomically; readers always see a complete snapshot, never a partial reload.
type FileRegistry struct {
	path string

	mu   sync.RWMutex
	jobs []*Job
}

// NewFileRegistry creates a registry for the given YAML file and performs
// the initial load.
func NewFileRegistry(path string) (*FileRegistry, error) {
	r := &FileRegistry{path: path}
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load re-reads the registry file. On failure the previous snapshot is kept.
func (r *FileRegistry) Load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return errors.WrapError(err, errors.CategoryRegistry, "read registry file").
			WithContext("path", r.path).Build()
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return errors.WrapError(err, errors.CategoryRegistry, "parse registry file").
			WithContext("path", r.path).Build()
	}
	if err := validateJobs(f.Jobs); err != nil {
		return err
	}

	r.mu.Lock()
	r.jobs = f.Jobs
	r.mu.Unlock()
	return nil
}

// AllJobs returns the current snapshot, filtered by the caller's identity:
// private jobs are only visible to the system identity.
func (r *FileRegistry) AllJobs(ctx context.Context) ([]*Job, error) {
	caller := identity.FromContext(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if j.Private && !caller.System {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Path returns the backing file path.
func (r *FileRegistry) Path() string {
	return r.path
}

func validateJobs(jobs []*Job) error {
	seen := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		if j.Name == "" {
			return errors.ValidationError("job name is required").Build()
		}
		if _, dup := seen[j.Name]; dup {
			return errors.ValidationError("duplicate job name").
				WithContext("job", j.Name).Build()
		}
		seen[j.Name] = struct{}{}

		if j.QuietPeriodSeconds < 0 {
			return errors.ValidationError("quiet period must not be negative").
				WithContext("job", j.Name).Build()
		}
		kinds := make(map[TriggerKind]struct{}, len(j.Triggers))
		for _, tr := range j.Triggers {
			switch tr.Kind {
			case TriggerGlobalAuto, TriggerPoll, TriggerPush:
			default:
				return errors.ValidationError("unknown trigger kind").
					WithContext("job", j.Name).
					WithContext("kind", string(tr.Kind)).Build()
			}
			if _, dup := kinds[tr.Kind]; dup {
				return errors.ValidationError("at most one trigger of each kind").
					WithContext("job", j.Name).
					WithContext("kind", string(tr.Kind)).Build()
			}
			kinds[tr.Kind] = struct{}{}
		}
	}
	return nil
}

// StaticView is a fixed in-memory View, mainly for tests and one-shot
// dispatches built from fabricated registries.
type StaticView struct {
	Jobs []*Job
}

// AllJobs returns every job regardless of identity.
func (v StaticView) AllJobs(context.Context) ([]*Job, error) {
	return v.Jobs, nil
}
