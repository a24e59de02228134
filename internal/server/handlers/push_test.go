package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smoyen/buildhook/internal/dispatch"
)

type dispatcherStub struct {
	called bool
	event  dispatch.PushEvent
	bypass bool
	result *dispatch.Result
	err    error
}

func (d *dispatcherStub) Dispatch(_ context.Context, event dispatch.PushEvent, bypass bool) (*dispatch.Result, error) {
	d.called = true
	d.event = event
	d.bypass = bypass
	if d.err != nil {
		return nil, d.err
	}
	return d.result, nil
}

func postPush(t *testing.T, h *PushHandlers, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.HandlePush(rr, req)
	return rr
}

func TestHandlePush_DispatchesEvent(t *testing.T) {
	stub := &dispatcherStub{result: &dispatch.Result{
		GitJobsFound:        true,
		MatchedRepositories: 1,
		Messages:            []string{"Scheduled build of ci-main"},
	}}
	h := NewPushHandlers(stub, nil)

	rr := postPush(t, h, "/hooks/push",
		`{"commit":"abc123","repository_uri":"https://example.com/org/repo.git"}`)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.True(t, stub.called)
	require.False(t, stub.bypass)
	require.Equal(t, "abc123", stub.event.CommitID)

	var resp map[string][]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, []string{"Scheduled build of ci-main"}, resp["messages"])
}

func TestHandlePush_BypassQueryParameter(t *testing.T) {
	stub := &dispatcherStub{result: &dispatch.Result{}}
	h := NewPushHandlers(stub, nil)

	rr := postPush(t, h, "/hooks/push?bypass=true",
		`{"commit":"abc123","repository_uri":"https://example.com/org/repo.git"}`)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.True(t, stub.bypass)
}

func TestHandlePush_EmptyMessagesStaysArray(t *testing.T) {
	stub := &dispatcherStub{result: &dispatch.Result{GitJobsFound: true}}
	h := NewPushHandlers(stub, nil)

	rr := postPush(t, h, "/hooks/push",
		`{"commit":"abc123","repository_uri":"https://example.com/org/repo.git"}`)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.JSONEq(t, `{"messages":[]}`, rr.Body.String())
}

func TestHandlePush_RejectsGet(t *testing.T) {
	h := NewPushHandlers(&dispatcherStub{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/hooks/push", nil)
	rr := httptest.NewRecorder()
	h.HandlePush(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlePush_RejectsBadJSON(t *testing.T) {
	stub := &dispatcherStub{result: &dispatch.Result{}}
	h := NewPushHandlers(stub, nil)

	rr := postPush(t, h, "/hooks/push", `{not json`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.False(t, stub.called)
}

func TestHandlePush_RejectsEmptyURI(t *testing.T) {
	stub := &dispatcherStub{result: &dispatch.Result{}}
	h := NewPushHandlers(stub, nil)

	rr := postPush(t, h, "/hooks/push", `{"commit":"abc123","repository_uri":""}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.False(t, stub.called)
}

func TestHandlePush_DispatchErrorIsReported(t *testing.T) {
	stub := &dispatcherStub{err: context.DeadlineExceeded}
	h := NewPushHandlers(stub, nil)

	rr := postPush(t, h, "/hooks/push",
		`{"commit":"abc123","repository_uri":"https://example.com/org/repo.git"}`)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
