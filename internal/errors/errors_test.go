package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifiedError_ErrorString(t *testing.T) {
	err := NewError(CategoryRegistry, "registry scan failed").Build()
	require.Equal(t, "[registry:error] registry scan failed", err.Error())

	wrapped := WrapError(stderrors.New("boom"), CategoryGit, "remote poll failed").Build()
	require.Equal(t, "[git:error] remote poll failed: boom", wrapped.Error())
}

func TestClassifiedError_Unwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := WrapError(cause, CategoryNetwork, "nats publish failed").Build()

	require.ErrorIs(t, err, cause)

	var classified *ClassifiedError
	require.True(t, stderrors.As(fmt.Errorf("outer: %w", err), &classified))
	require.Equal(t, CategoryNetwork, classified.Category())
}

func TestClassifiedError_Context(t *testing.T) {
	err := ValidationError("bad remote URI").
		WithContext("uri", "://nope").
		Build().
		WithContext("job", "ci-main")

	v, ok := err.Context().Get("uri")
	require.True(t, ok)
	require.Equal(t, "://nope", v)
	v, ok = err.Context().Get("job")
	require.True(t, ok)
	require.Equal(t, "ci-main", v)
}

func TestIsCategory(t *testing.T) {
	err := QueueError("queue is full").Build()
	require.True(t, IsCategory(err, CategoryQueue))
	require.False(t, IsCategory(err, CategoryGit))
	require.False(t, IsCategory(stderrors.New("plain"), CategoryQueue))
	require.Equal(t, CategoryInternal, GetCategory(stderrors.New("plain")))
}

func TestBuilder_RetryClassification(t *testing.T) {
	err := GitError("ls-remote failed").Build()
	require.True(t, err.CanRetry())
	require.Equal(t, RetryBackoff, err.RetryStrategy())

	verr := ValidationError("nope").Build()
	require.False(t, verr.CanRetry())
}

func TestHTTPErrorAdapter_StatusCodes(t *testing.T) {
	a := NewHTTPErrorAdapter(nil)

	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ValidationError("bad payload").Build(), http.StatusBadRequest},
		{NewError(CategoryNotFound, "no such job").Build(), http.StatusNotFound},
		{GitError("remote unreachable").Build(), http.StatusBadGateway},
		{RegistryError("registry not ready").Build(), http.StatusServiceUnavailable},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, a.StatusCodeFor(tc.err))
	}
}

func TestHTTPErrorAdapter_FormatErrorResponse(t *testing.T) {
	a := NewHTTPErrorAdapter(nil)

	resp := a.FormatErrorResponse(GitError("poll failed").WithContext("remote", "git@example.com:o/r.git").Build())
	require.Equal(t, "poll failed", resp.Error)
	require.Equal(t, "git", resp.Code)
	require.True(t, resp.Retryable)
	require.Equal(t, "git@example.com:o/r.git", resp.Details["remote"])
}
