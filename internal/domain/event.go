package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventRunStarted  EventType = "run.started"
	EventRunStopped  EventType = "run.stopped"
	EventTestStarted EventType = "test.started"
	EventTestPassed  EventType = "test.passed"
	EventTestFailed  EventType = "test.failed"
	EventTestSkipped EventType = "test.skipped"
	EventGateBlocked EventType = "gate.blocked"
	EventGatePassed  EventType = "gate.passed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RunID     string          `json:"run_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ExecutionPayload describes one test execution outcome.
type ExecutionPayload struct {
	Test        string        `json:"test"`
	Kind        TestKind      `json:"kind"`
	Expectation ExpectationID `json:"expectation,omitempty"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
