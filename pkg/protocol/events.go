// Package protocol defines the normalized progress events the relay streams to
// front-ends. Each event is a flat JSON object with a "type" discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind is the wire discriminator of an Event.
type Kind string

const (
	KindStatus     Kind = "STATUS"
	KindProgress   Kind = "PROGRESS"
	KindStep       Kind = "STEP"
	KindBrowserURL Kind = "BROWSER_URL"
	KindScreenshot Kind = "SCREENSHOT"
	KindComplete   Kind = "COMPLETE"
	KindError      Kind = "ERROR"
)

// Event is one protocol event. The set of implementations is closed.
type Event interface {
	Kind() Kind
	isEvent()
}

// Status is a human-readable state description.
type Status struct {
	Message string `json:"message"`
	RunID   string `json:"runId,omitempty"`
}

// Progress is a completion estimate in [0, 100].
type Progress struct {
	Progress int `json:"progress"`
}

// Step is one entry of the ordered action log.
type Step struct {
	Step        StepID `json:"step"`
	Description string `json:"description"`
}

// BrowserURL is a live-viewable session URL.
type BrowserURL struct {
	URL string `json:"url"`
}

// Screenshot is a base64 encoded image; it supersedes a BrowserURL view.
type Screenshot struct {
	Image string `json:"image"`
}

// Complete is the terminal success marker. Result is the provider's opaque
// result payload and may be empty.
type Complete struct {
	Result json.RawMessage `json:"result,omitempty"`
}

// Error is a failure marker. When emitted by the relay it is always fatal.
type Error struct {
	Message string `json:"message"`
}

func (Status) Kind() Kind     { return KindStatus }
func (Progress) Kind() Kind   { return KindProgress }
func (Step) Kind() Kind       { return KindStep }
func (BrowserURL) Kind() Kind { return KindBrowserURL }
func (Screenshot) Kind() Kind { return KindScreenshot }
func (Complete) Kind() Kind   { return KindComplete }
func (Error) Kind() Kind      { return KindError }

func (Status) isEvent()     {}
func (Progress) isEvent()   {}
func (Step) isEvent()       {}
func (BrowserURL) isEvent() {}
func (Screenshot) isEvent() {}
func (Complete) isEvent()   {}
func (Error) isEvent()      {}

// IsTerminal reports whether e ends a run.
func IsTerminal(e Event) bool {
	switch e.(type) {
	case Complete, Error:
		return true
	default:
		return false
	}
}

// StepID is either a step number or a free-form label such as "Final".
type StepID struct {
	Number int
	Label  string
}

// StepNumber returns a numeric StepID.
func StepNumber(n int) StepID { return StepID{Number: n} }

// StepLabel returns a labelled StepID.
func StepLabel(label string) StepID { return StepID{Label: label} }

// IsLabel reports whether the id is a label rather than a number.
func (s StepID) IsLabel() bool { return s.Label != "" }

func (s StepID) String() string {
	if s.IsLabel() {
		return s.Label
	}
	return strconv.Itoa(s.Number)
}

// MarshalJSON encodes a number as a JSON number and a label as a string.
func (s StepID) MarshalJSON() ([]byte, error) {
	if s.IsLabel() {
		return json.Marshal(s.Label)
	}
	return []byte(strconv.Itoa(s.Number)), nil
}

// UnmarshalJSON accepts either a JSON number or a string.
func (s *StepID) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*s = StepID{Number: n}
		return nil
	}
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("step must be a number or a string: %w", err)
	}
	*s = StepID{Label: label}
	return nil
}
