package eventlog

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType classifies governed-session lifecycle events.
type EventType string

const (
	EventTaskStarted       EventType = "task-started"
	EventActionAllowed     EventType = "action-allowed"
	EventActionDenied      EventType = "action-denied"
	EventApprovalRequested EventType = "approval-requested"
	EventApprovalResolved  EventType = "approval-resolved"
	EventTaskCompleted     EventType = "task-completed"
	EventTaskFailed        EventType = "task-failed"
)

// Terminal reports whether the event type ends a task's lifecycle.
func (t EventType) Terminal() bool {
	return t == EventTaskCompleted || t == EventTaskFailed
}

// EngineEvent is one appended lifecycle record. Events are immutable once
// recorded.
type EngineEvent struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Type        EventType      `json:"type"`
	IssueNumber int            `json:"issue_number"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// entropy keeps ULIDs strictly increasing within a process even when several
// events share a millisecond, so ID order is append order.
var entropy = &ulid.LockedMonotonicReader{
	MonotonicReader: ulid.Monotonic(rand.Reader, 0),
}

// NewID returns a ULID for an event recorded at t.
func NewID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
