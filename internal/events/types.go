// Package events defines the run lifecycle events published by the relay and
// selects the bus implementation that carries them.
package events

// Run lifecycle event types
const (
	RunStarted   = "run.started"
	RunCompleted = "run.completed"
	RunFailed    = "run.failed"
	RunAbandoned = "run.abandoned"
)

// Source identifies the relay as event producer.
const Source = "relay"

// Subject returns the bus subject for an event type, e.g. "relay.run.started".
func Subject(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}
