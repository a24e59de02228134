// Package announce publishes dispatch outcomes to NATS so downstream systems
// (chat notifiers, audit consumers) can react without polling the admin API.
package announce

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/smoyen/buildhook/internal/config"
	"github.com/smoyen/buildhook/internal/dispatch"
	apperrors "github.com/smoyen/buildhook/internal/errors"
	"github.com/smoyen/buildhook/internal/logfields"
)

// Announcer publishes the outcome of one dispatch.
type Announcer interface {
	AnnounceDispatch(ctx context.Context, event dispatch.PushEvent, result *dispatch.Result) error
	Close() error
}

// NopAnnouncer discards announcements; used when NATS is not configured.
type NopAnnouncer struct{}

func (NopAnnouncer) AnnounceDispatch(context.Context, dispatch.PushEvent, *dispatch.Result) error {
	return nil
}
func (NopAnnouncer) Close() error { return nil }

// dispatchAnnouncement is the published wire format.
type dispatchAnnouncement struct {
	Commit              string           `json:"commit"`
	RepositoryURI       string           `json:"repository_uri"`
	GitJobsFound        bool             `json:"git_jobs_found"`
	MatchedRepositories int              `json:"matched_repositories"`
	Outcomes            []outcomeSummary `json:"outcomes,omitempty"`
	Messages            []string         `json:"messages,omitempty"`
	Timestamp           time.Time        `json:"timestamp"`
}

type outcomeSummary struct {
	Job    string `json:"job"`
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

func buildAnnouncement(event dispatch.PushEvent, result *dispatch.Result, ts time.Time) dispatchAnnouncement {
	msg := dispatchAnnouncement{
		Commit:              event.CommitID,
		RepositoryURI:       event.RepositoryURI.String(),
		GitJobsFound:        result.GitJobsFound,
		MatchedRepositories: result.MatchedRepositories,
		Messages:            result.Messages,
		Timestamp:           ts,
	}
	for _, o := range result.Outcomes {
		msg.Outcomes = append(msg.Outcomes, outcomeSummary{
			Job:    o.JobName,
			Kind:   string(o.Kind),
			Reason: string(o.Reason),
		})
	}
	return msg
}

// NATSAnnouncer publishes announcements over JetStream.
type NATSAnnouncer struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
	timeout time.Duration
	logger  *slog.Logger
}

// NewNATSAnnouncer connects to NATS and prepares the JetStream publisher.
func NewNATSAnnouncer(cfg config.NATSConfig, logger *slog.Logger) (*NATSAnnouncer, error) {
	if !cfg.Enabled {
		return nil, apperrors.ConfigError("announcements are disabled").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.CategoryNetwork, "failed to connect to NATS").
			WithContext("url", cfg.URL).
			Build()
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, apperrors.WrapError(err, apperrors.CategoryNetwork, "failed to create JetStream context").
			Build()
	}

	logger.Info("Dispatch announcer connected", "url", cfg.URL, "subject", cfg.Subject)

	return &NATSAnnouncer{
		conn:    conn,
		js:      js,
		subject: cfg.Subject,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// AnnounceDispatch publishes one dispatch result. Failures are returned so
// the caller can decide whether to log or ignore them.
func (a *NATSAnnouncer) AnnounceDispatch(ctx context.Context, event dispatch.PushEvent, result *dispatch.Result) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	data, err := json.Marshal(buildAnnouncement(event, result, time.Now()))
	if err != nil {
		return apperrors.WrapError(err, apperrors.CategoryInternal, "failed to marshal announcement").Build()
	}

	if _, err := a.js.Publish(ctx, a.subject, data); err != nil {
		return apperrors.WrapError(err, apperrors.CategoryNetwork, "failed to publish announcement").
			WithContext("subject", a.subject).
			Build()
	}

	a.logger.Debug("Published dispatch announcement",
		logfields.Commit(event.CommitID),
		logfields.EventURI(event.RepositoryURI.String()))
	return nil
}

// Close closes the NATS connection.
func (a *NATSAnnouncer) Close() error {
	if a.conn != nil {
		a.conn.Close()
	}
	return nil
}
