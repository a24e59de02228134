package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/smoyen/buildhook/internal/errors"
	"github.com/smoyen/buildhook/internal/eventstore"
	"github.com/smoyen/buildhook/internal/queue"
)

// Runtime exposes the daemon state the admin endpoints report on.
type Runtime interface {
	StartTime() time.Time
	QueueLength() int
	ActiveBuilds() []*queue.Build
	BuildHistory() []*queue.Build
	JobCount() int
}

// AdminHandlers serves health, status, and event-history endpoints.
type AdminHandlers struct {
	runtime      Runtime
	events       eventstore.Store
	errorAdapter *errors.HTTPErrorAdapter
	logger       *slog.Logger
}

// NewAdminHandlers constructs AdminHandlers.
func NewAdminHandlers(runtime Runtime, events eventstore.Store, logger *slog.Logger) *AdminHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = eventstore.NopStore{}
	}
	return &AdminHandlers{
		runtime:      runtime,
		events:       events,
		errorAdapter: errors.NewHTTPErrorAdapter(logger),
		logger:       logger,
	}
}

// HandleHealth answers liveness probes.
func (h *AdminHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Status       string         `json:"status"`
	UptimeSec    int64          `json:"uptime_seconds"`
	Jobs         int            `json:"jobs"`
	QueueLength  int            `json:"queue_length"`
	ActiveBuilds []*queue.Build `json:"active_builds"`
	History      []*queue.Build `json:"history"`
}

// HandleStatus reports queue and build state.
func (h *AdminHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:       "running",
		UptimeSec:    int64(time.Since(h.runtime.StartTime()).Seconds()),
		Jobs:         h.runtime.JobCount(),
		QueueLength:  h.runtime.QueueLength(),
		ActiveBuilds: h.runtime.ActiveBuilds(),
		History:      h.runtime.BuildHistory(),
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

const defaultEventLimit = 50

// HandleEvents lists dispatch and build events. Without parameters the most
// recent events are returned, newest first, capped by limit. A scope
// parameter returns every event of one dispatch or build; a since parameter
// (RFC 3339) returns events from that instant onward.
func (h *AdminHandlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.queryEvents(r)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if events == nil {
		events = []eventstore.Event{}
	}
	_ = writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *AdminHandlers) queryEvents(r *http.Request) ([]eventstore.Event, error) {
	q := r.URL.Query()

	if scope := q.Get("scope"); scope != "" {
		events, err := h.events.GetByScopeID(r.Context(), scope)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryEventStore, "failed to load events").Build()
		}
		return events, nil
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.ValidationError("invalid since parameter").
				WithContext("since", raw).
				Build()
		}
		events, err := h.events.GetRange(r.Context(), since, time.Now())
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryEventStore, "failed to load events").Build()
		}
		return events, nil
	}

	limit := defaultEventLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, errors.ValidationError("invalid limit parameter").
				WithContext("limit", raw).
				Build()
		}
		limit = n
	}
	events, err := h.events.GetRecent(r.Context(), limit)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryEventStore, "failed to load events").Build()
	}
	return events, nil
}
