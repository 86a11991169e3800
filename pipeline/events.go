// ABOUTME: Engine lifecycle events for observability of pipeline runs.
// ABOUTME: Emitted through an optional callback; no event handler means no overhead.
package pipeline

import "time"

// EventType identifies the kind of engine lifecycle event.
type EventType string

const (
	EventRunStarted        EventType = "run.started"
	EventRunCompleted      EventType = "run.completed"
	EventRunCancelled      EventType = "run.cancelled"
	EventRunFailed         EventType = "run.failed"
	EventStageStarted      EventType = "stage.started"
	EventStageCompleted    EventType = "stage.completed"
	EventStageFailed       EventType = "stage.failed"
	EventStageRetrying     EventType = "stage.retrying"
	EventApprovalRequested EventType = "approval.requested"
	EventApprovalResolved  EventType = "approval.resolved"
	EventRevisionIteration EventType = "revision.iteration"
	EventPersistWarning    EventType = "persist.warning"
)

// Event is a lifecycle event emitted by the engine during a run.
type Event struct {
	Type      EventType
	RunID     string
	Stage     string
	Data      map[string]any
	Timestamp time.Time
}
