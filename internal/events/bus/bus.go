// Package bus carries run lifecycle notifications between the relay and its
// observers, either in process or over NATS.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one lifecycle notification. Data survives a JSON round trip when it
// crosses NATS, so numbers arrive as float64 on remote subscribers; read them
// through Int.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	RunID     string                 `json:"run_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates an event with a fresh id and the current UTC time.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// NewRunEvent creates an event about the run runID.
func NewRunEvent(eventType, source, runID string, data map[string]interface{}) *Event {
	e := NewEvent(eventType, source, data)
	e.RunID = runID
	return e
}

// Str returns Data[key] when it is a string.
func (e *Event) Str(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Int returns Data[key] as an int whether it was published locally or decoded
// from JSON.
func (e *Event) Int(key string) int {
	switch v := e.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// EventHandler consumes one delivered event. A returned error is logged by the
// bus and does not stop delivery.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription is a live registration returned by Subscribe.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus publishes events on dotted subjects and fans them out to
// subscribers. Subjects accept NATS wildcards: * for one token, > for the rest.
type EventBus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler EventHandler) (Subscription, error)
	Close()
	IsConnected() bool
}
