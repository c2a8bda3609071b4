package engine

import (
	"time"

	"go.uber.org/zap"
)

// EventType classifies progress events emitted during plan execution.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventRunCompleted   EventType = "run_completed"
	EventBatchStarted   EventType = "batch_started"
	EventBatchCompleted EventType = "batch_completed"
	EventTaskStarted    EventType = "task_started"
	EventTaskCompleted  EventType = "task_completed"
	EventTaskFailed     EventType = "task_failed"
	EventMergeStarted   EventType = "merge_started"
	EventMergeCompleted EventType = "merge_completed"
	EventMergeConflict  EventType = "merge_conflict"
	EventTestsFailed    EventType = "tests_failed"
	EventRollback       EventType = "rollback"
	EventStopRequested  EventType = "stop_requested"
)

// ProgressEvent is one observable step of a run. BatchID is -1 for
// events outside any batch.
type ProgressEvent struct {
	Type      EventType
	ProjectID string
	BatchID   int
	TaskID    string
	SessionID string
	Message   string
	Timestamp time.Time
}

// EventSink receives progress events. Publish must not block for long;
// the engine calls it inline.
type EventSink interface {
	Publish(ProgressEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(ProgressEvent) {}

// LogSink forwards events to a structured logger.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Publish(e ProgressEvent) {
	s.Logger.Info("progress",
		zap.String("event", string(e.Type)),
		zap.String("project_id", e.ProjectID),
		zap.Int("batch_id", e.BatchID),
		zap.String("task_id", e.TaskID),
		zap.String("message", e.Message))
}

var (
	_ EventSink = NopSink{}
	_ EventSink = LogSink{}
)
