package queue

import (
	"bytes"
	"context"
	"os/exec"

	apperrors "github.com/smoyen/buildhook/internal/errors"
)

// Builder executes a build and fills in the build's output.
type Builder interface {
	Run(ctx context.Context, build *Build) error
}

// outputLimit bounds how much command output is kept per build.
const outputLimit = 64 << 10

// CommandBuilder runs the job's configured build command through the shell.
type CommandBuilder struct {
	// Shell overrides the interpreter, default /bin/sh.
	Shell string
	// WorkDir is the working directory for build commands.
	WorkDir string
}

func (b *CommandBuilder) Run(ctx context.Context, build *Build) error {
	if build.Command == "" {
		return apperrors.ValidationError("job has no build command").
			WithContext("job", build.JobName).
			Build()
	}

	shell := b.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, shell, "-c", build.Command)
	cmd.Dir = b.WorkDir
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if out.Len() > outputLimit {
		build.Output = out.String()[out.Len()-outputLimit:]
	} else {
		build.Output = out.String()
	}
	if err != nil {
		return apperrors.WrapError(err, apperrors.CategoryRuntime, "build command failed").
			WithContext("job", build.JobName).
			Build()
	}
	return nil
}

// BuilderFunc adapts a plain function to Builder.
type BuilderFunc func(ctx context.Context, build *Build) error

func (f BuilderFunc) Run(ctx context.Context, build *Build) error { return f(ctx, build) }
