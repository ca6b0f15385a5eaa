package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/hostsync/pkg/engine"
)

// Event is a progress event of a hostsync run.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated run ID, if any.
	RunID string `json:"run_id,omitempty"`

	// Subsystem is the associated subsystem id, if any.
	Subsystem string `json:"subsystem,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeRunStarted         = "run.started"
	EventTypeRunCompleted       = "run.completed"
	EventTypeOperationCompleted = "operation.completed"
	EventTypeOperationFailed    = "operation.failed"
	EventTypeDriftDetected      = "drift.detected"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// ErrPublisherStopped is returned by Publish after Shutdown.
var ErrPublisherStopped = errors.New("event publisher stopped")

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher delivers events to subscribers in publish order on a
// single goroutine.
type EventPublisher struct {
	buffer      chan Event
	subscribers []subscriberEntry
	mu          sync.RWMutex
	done        chan struct{}

	// sendMu is held for reading while an event is queued, so the buffer
	// is never closed under a blocked sender.
	sendMu sync.RWMutex
	closed bool
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	ep := &EventPublisher{
		buffer: make(chan Event, size),
		done:   make(chan struct{}),
	}
	go ep.processEvents()
	return ep
}

// Subscribe adds a subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// Publish queues an event. It blocks while the buffer is full and fails
// once the publisher is shut down.
func (ep *EventPublisher) Publish(event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.sendMu.RLock()
	defer ep.sendMu.RUnlock()
	if ep.closed {
		return ErrPublisherStopped
	}
	ep.buffer <- event
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID, direction string, summary engine.PlanSummary) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		RunID:   runID,
		Message: fmt.Sprintf("%s started with %d operation(s)", direction, summary.ActionCount()),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"direction":  direction,
			"operations": summary.ActionCount(),
		},
	})
}

// PublishProgress publishes the outcome of one operation.
func (ep *EventPublisher) PublishProgress(runID string, p engine.OperationProgress) error {
	event := Event{
		Type:      EventTypeOperationCompleted,
		RunID:     runID,
		Subsystem: p.Operation.Subsystem,
		Message:   p.Operation.String(),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"index": p.Index,
			"total": p.Total,
		},
	}
	if !p.Success {
		event.Type = EventTypeOperationFailed
		event.Level = EventLevelError
		event.Message = fmt.Sprintf("%s: %s", p.Operation, p.Message)
	}
	return ep.Publish(event)
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, direction string, report *engine.ExecutionReport) error {
	level := EventLevelInfo
	if report.FailureCount() > 0 {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("%s finished: %s", direction, report.Status()),
		Level:   level,
		Data: map[string]interface{}{
			"succeeded": report.SuccessCount(),
			"failed":    report.FailureCount(),
		},
	})
}

// PublishDriftDetected publishes the drift of one subsystem.
func (ep *EventPublisher) PublishDriftDetected(subsystem string, status engine.ComponentStatus) error {
	return ep.Publish(Event{
		Type:      EventTypeDriftDetected,
		Subsystem: subsystem,
		Message: fmt.Sprintf("%s: %d pending, %d to update, %d untracked",
			status.Name, status.Pending, status.ToUpdate, status.Untracked),
		Level: EventLevelWarning,
		Data: map[string]interface{}{
			"pending":   status.Pending,
			"to_update": status.ToUpdate,
			"untracked": status.Untracked,
		},
	})
}

// processEvents delivers buffered events until the buffer is closed.
func (ep *EventPublisher) processEvents() {
	defer close(ep.done)
	for event := range ep.buffer {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all matching subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops accepting events and waits until queued events are delivered.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	ep.sendMu.Lock()
	if !ep.closed {
		ep.closed = true
		close(ep.buffer)
	}
	ep.sendMu.Unlock()

	select {
	case <-ep.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

var eventLevels = map[string]int{
	EventLevelInfo:    0,
	EventLevelWarning: 1,
	EventLevelError:   2,
}

// FilterByLevel accepts events at minLevel or above.
func FilterByLevel(minLevel string) EventFilter {
	threshold := eventLevels[minLevel]
	return func(event Event) bool {
		return eventLevels[event.Level] >= threshold
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}
