package daemon

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/smoyen/buildhook/internal/announce"
	"github.com/smoyen/buildhook/internal/dispatch"
	"github.com/smoyen/buildhook/internal/eventstore"
	"github.com/smoyen/buildhook/internal/logfields"
)

// dispatchRunner wraps the dispatch engine with event recording and outcome
// announcements. Both side channels are best effort: their failures are
// logged, never surfaced to the webhook caller.
type dispatchRunner struct {
	dispatcher *dispatch.Dispatcher
	events     eventstore.Store
	announcer  announce.Announcer
	logger     *slog.Logger
}

func (d *dispatchRunner) Dispatch(ctx context.Context, event dispatch.PushEvent, bypassPolling bool) (*dispatch.Result, error) {
	scopeID := uuid.NewString()
	d.appendEvent(ctx, scopeID, eventstore.TypeDispatchReceived, map[string]string{
		"commit":     event.CommitID,
		"repository": event.RepositoryURI.String(),
	})

	result, err := d.dispatcher.Dispatch(ctx, event, bypassPolling)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{
		"matched":  result.MatchedRepositories,
		"messages": result.Messages,
	})
	d.appendPayload(ctx, scopeID, eventstore.TypeDispatchCompleted, payload)

	if aerr := d.announcer.AnnounceDispatch(ctx, event, result); aerr != nil {
		d.logger.Warn("Failed to announce dispatch",
			logfields.Commit(event.CommitID),
			logfields.Error(aerr))
	}

	return result, nil
}

func (d *dispatchRunner) appendEvent(ctx context.Context, scopeID, eventType string, metadata map[string]string) {
	if err := d.events.Append(ctx, scopeID, eventType, nil, metadata); err != nil {
		d.logger.Warn("Failed to record dispatch event", "event_type", eventType, logfields.Error(err))
	}
}

func (d *dispatchRunner) appendPayload(ctx context.Context, scopeID, eventType string, payload []byte) {
	if err := d.events.Append(ctx, scopeID, eventType, payload, nil); err != nil {
		d.logger.Warn("Failed to record dispatch event", "event_type", eventType, logfields.Error(err))
	}
}
