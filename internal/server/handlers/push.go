package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/smoyen/buildhook/internal/dispatch"
	"github.com/smoyen/buildhook/internal/errors"
	"github.com/smoyen/buildhook/internal/gituri"
	"github.com/smoyen/buildhook/internal/logfields"
)

// DispatchRunner runs one push event through the dispatch engine.
type DispatchRunner interface {
	Dispatch(ctx context.Context, event dispatch.PushEvent, bypassPolling bool) (*dispatch.Result, error)
}

// PushHandlers serves the inbound push-notification endpoint.
type PushHandlers struct {
	dispatcher   DispatchRunner
	errorAdapter *errors.HTTPErrorAdapter
	logger       *slog.Logger
}

// NewPushHandlers constructs PushHandlers.
func NewPushHandlers(dispatcher DispatchRunner, logger *slog.Logger) *PushHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushHandlers{
		dispatcher:   dispatcher,
		errorAdapter: errors.NewHTTPErrorAdapter(logger),
		logger:       logger,
	}
}

// pushPayload is the inbound wire format.
type pushPayload struct {
	Commit        string `json:"commit"`
	RepositoryURI string `json:"repository_uri"`
}

// pushResponse carries the human-readable dispatch messages back to the caller.
type pushResponse struct {
	Messages []string `json:"messages"`
}

// HandlePush receives one push notification, dispatches it, and answers with
// the rendered messages. The optional bypass=true query parameter skips the
// poll step and queues matched builds directly.
func (h *PushHandlers) HandlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "POST").
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	var payload pushPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		derr := errors.ValidationError("invalid JSON payload").
			WithContext("content_type", r.Header.Get("Content-Type")).
			WithContext("error", err.Error()).
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, derr)
		return
	}

	uri, err := gituri.Parse(payload.RepositoryURI)
	if err != nil {
		derr := errors.ValidationError("invalid repository URI").
			WithContext("repository_uri", payload.RepositoryURI).
			WithContext("error", err.Error()).
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, derr)
		return
	}

	event := dispatch.PushEvent{CommitID: payload.Commit, RepositoryURI: uri}
	bypass := r.URL.Query().Get("bypass") == "true"

	result, err := h.dispatcher.Dispatch(r.Context(), event, bypass)
	if err != nil {
		derr := errors.WrapError(err, errors.CategoryDispatch, "dispatch failed").
			WithContext("repository_uri", payload.RepositoryURI).
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, derr)
		return
	}

	messages := result.Messages
	if messages == nil {
		messages = []string{}
	}
	if err := writeJSON(w, http.StatusAccepted, pushResponse{Messages: messages}); err != nil {
		h.logger.Error("failed to write push response", logfields.Error(err))
	}
}
