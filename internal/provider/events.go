package provider

import (
	"encoding/json"
	"fmt"
)

// Raw provider event types. Several names are aliases seen across provider
// versions.
const (
	TypeStarted      = "STARTED"
	TypeStreamingURL = "STREAMING_URL"
	TypeBrowserURL   = "BROWSER_URL"
	TypeProgress     = "PROGRESS"
	TypeAction       = "ACTION"
	TypeComplete     = "COMPLETE"
	TypeError        = "ERROR"
)

// Completion statuses carried by a COMPLETE event.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Event is one provider event after field-name normalization. The set of
// implementations is closed.
type Event interface {
	// Type returns the raw provider type the event was decoded from.
	Type() string
	isProviderEvent()
}

// Started signals that the automation run has begun.
type Started struct {
	RunID string
}

// StreamingURL signals that a live viewer URL is available.
type StreamingURL struct {
	Raw string
	URL string
}

// Action signals one agent action or progress tick.
type Action struct {
	Raw         string
	Description string
}

// Complete signals the end of the automation run.
type Complete struct {
	Status string
	Result json.RawMessage
	Error  string
}

// Succeeded reports whether the run completed successfully.
func (c Complete) Succeeded() bool { return c.Status == StatusCompleted }

// Failure is an explicit provider error.
type Failure struct {
	Message string
}

// Unknown is any event type this adapter does not recognize.
type Unknown struct {
	Raw string
}

func (Started) Type() string        { return TypeStarted }
func (e StreamingURL) Type() string { return e.Raw }
func (e Action) Type() string       { return e.Raw }
func (Complete) Type() string       { return TypeComplete }
func (Failure) Type() string        { return TypeError }
func (e Unknown) Type() string      { return e.Raw }

func (Started) isProviderEvent()      {}
func (StreamingURL) isProviderEvent() {}
func (Action) isProviderEvent()       {}
func (Complete) isProviderEvent()     {}
func (Failure) isProviderEvent()      {}
func (Unknown) isProviderEvent()      {}

// wireEvent is the union of every field name the provider has used.
type wireEvent struct {
	Type         string          `json:"type"`
	RunID        string          `json:"runId"`
	StreamingURL string          `json:"streamingUrl"`
	URL          string          `json:"url"`
	Purpose      string          `json:"purpose"`
	Description  string          `json:"description"`
	Message      string          `json:"message"`
	Status       string          `json:"status"`
	ResultJSON   json.RawMessage `json:"resultJson"`
	Result       json.RawMessage `json:"result"`
	Error        json.RawMessage `json:"error"`
}

// ParseEvent decodes one provider payload and normalizes field-name drift so
// that callers only see the closed Event set.
func ParseEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode provider event: %w", err)
	}
	if w.Type == "" {
		return nil, fmt.Errorf("decode provider event: missing type")
	}

	switch w.Type {
	case TypeStarted:
		return Started{RunID: w.RunID}, nil
	case TypeStreamingURL, TypeBrowserURL:
		return StreamingURL{Raw: w.Type, URL: firstNonEmpty(w.StreamingURL, w.URL)}, nil
	case TypeProgress, TypeAction:
		return Action{Raw: w.Type, Description: firstNonEmpty(w.Purpose, w.Description, w.Message)}, nil
	case TypeComplete:
		return Complete{
			Status: w.Status,
			Result: firstRaw(w.ResultJSON, w.Result),
			Error:  firstNonEmpty(errorText(w.Error), w.Message),
		}, nil
	case TypeError:
		return Failure{Message: firstNonEmpty(w.Message, errorText(w.Error))}, nil
	default:
		return Unknown{Raw: w.Type}, nil
	}
}

// errorText accepts the provider's error as a string or as an object with a
// message field.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstRaw(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}
