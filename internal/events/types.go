// internal/events/types.go
package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Outcome of a query or an externally executed operation
	OutcomeRecorded EventType = "outcome.recorded"

	// Dependency lifecycle
	ReadinessChanged EventType = "readiness.changed"
	ConnectionReset  EventType = "connection.reset"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// OutcomeEvent describes how one operation ended. Signature is the
// correlation id of an externally executed transaction, if any.
type OutcomeEvent struct {
	BaseEvent
	Operation string
	Key       string
	Success   bool
	Error     string
	Signature string
	Endpoint  string
	Duration  time.Duration
}

// NewOutcomeEvent stamps an OutcomeEvent.
func NewOutcomeEvent(at time.Time, operation, key string, err error, d time.Duration) OutcomeEvent {
	e := OutcomeEvent{
		BaseEvent: BaseEvent{EventType: OutcomeRecorded, EventTime: at},
		Operation: operation,
		Key:       key,
		Success:   err == nil,
		Duration:  d,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// ReadinessChangedEvent is emitted on every readiness transition.
type ReadinessChangedEvent struct {
	BaseEvent
	State      string
	RetryCount int
	Error      string
}

// ConnectionResetEvent is emitted when the memoized connection is dropped.
type ConnectionResetEvent struct {
	BaseEvent
	Endpoint string
	Reason   string
}
