package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/model"
)

// LogSink writes events as structured log records.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *logger.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "audit")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(ctx context.Context, event model.AuditEvent) error {
	args := []any{
		"event_id", event.ID,
		"type", event.Type,
		"outcome", event.Outcome,
		"timestamp", event.Timestamp,
	}
	if event.Actor != "" {
		args = append(args, "actor", event.Actor)
	}
	if event.ClientID != "" {
		args = append(args, "client_id", event.ClientID)
	}
	if event.Resource != "" {
		args = append(args, "resource", event.Resource)
	}
	if event.Reason != "" {
		args = append(args, "reason", event.Reason)
	}
	for k, v := range event.Details {
		args = append(args, k, v)
	}

	s.logger.InfoContext(ctx, "audit event", args...)
	return nil
}

// ObjectSink archives each event as a JSON object keyed by day.
type ObjectSink struct {
	storage model.ObjectStorage
	prefix  string
}

// NewObjectSink creates an ObjectSink writing under prefix.
func NewObjectSink(storage model.ObjectStorage, prefix string) *ObjectSink {
	if prefix == "" {
		prefix = "audit"
	}
	return &ObjectSink{storage: storage, prefix: prefix}
}

func (s *ObjectSink) Name() string { return "object" }

func (s *ObjectSink) Write(ctx context.Context, event model.AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	err = s.storage.Upload(ctx, s.Key(event), bytes.NewReader(body), int64(len(body)), "application/json")
	if err != nil {
		return fmt.Errorf("failed to archive audit event: %w", err)
	}
	return nil
}

// Key returns the object name of event: <prefix>/YYYY/MM/DD/<id>.json.
func (s *ObjectSink) Key(event model.AuditEvent) string {
	ts := event.Timestamp.UTC()
	return path.Join(s.prefix, ts.Format("2006"), ts.Format("01"), ts.Format("02"), event.ID+".json")
}
