package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Frame is one line of a scripted stream. Raw is written verbatim after the
// data prefix; otherwise Event is encoded as JSON.
type Frame struct {
	Event   map[string]any `yaml:"event"`
	Raw     string         `yaml:"raw"`
	DelayMS int            `yaml:"delayMs"`
}

// Scenario scripts one provider response.
type Scenario struct {
	Name string `yaml:"name"`
	// Status other than 0 or 200 answers with Body instead of a stream.
	Status int     `yaml:"status"`
	Body   string  `yaml:"body"`
	Frames []Frame `yaml:"frames"`
}

// payload renders the frame's data line content.
func (f Frame) payload() ([]byte, error) {
	if f.Raw != "" {
		return []byte(f.Raw), nil
	}
	return json.Marshal(f.Event)
}

func ev(fields ...any) Frame {
	m := make(map[string]any, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		m[fields[i].(string)] = fields[i+1]
	}
	return Frame{Event: m}
}

var builtinScenarios = map[string]Scenario{
	"success": {
		Name: "success",
		Frames: []Frame{
			ev("type", "STARTED", "runId", "mock-run-1"),
			ev("type", "STREAMING_URL", "streamingUrl", "https://example.com/live/mock-run-1"),
			ev("type", "PROGRESS", "purpose", "Opening the redelivery form"),
			ev("type", "PROGRESS", "purpose", "Entering the tracking number"),
			ev("type", "PROGRESS", "purpose", "Entering the recipient name"),
			ev("type", "PROGRESS", "purpose", "Selecting the delivery date and time slot"),
			ev("type", "COMPLETE", "status", "COMPLETED", "resultJson", map[string]any{"filled": true, "submitted": false}),
		},
	},
	"failure": {
		Name: "failure",
		Frames: []Frame{
			ev("type", "STARTED", "runId", "mock-run-2"),
			ev("type", "PROGRESS", "purpose", "Entering the tracking number"),
			ev("type", "COMPLETE", "status", "FAILED", "error", "Tracking number was rejected"),
		},
	},
	"error": {
		Name: "error",
		Frames: []Frame{
			ev("type", "STARTED", "runId", "mock-run-3"),
			ev("type", "ERROR", "message", "Browser session crashed"),
		},
	},
	"truncated": {
		Name: "truncated",
		Frames: []Frame{
			ev("type", "STARTED", "runId", "mock-run-4"),
			{Raw: `{"type":"PROGRESS","purpose":"Entering the`},
			ev("type", "PROGRESS", "purpose", "Entering the recipient name"),
		},
	},
	"legacy": {
		Name: "legacy",
		Frames: []Frame{
			ev("type", "STARTED", "runId", "mock-run-5"),
			ev("type", "BROWSER_URL", "url", "https://example.com/live/mock-run-5"),
			ev("type", "ACTION", "description", "Typing tracking number"),
			ev("type", "ACTION", "message", "Choosing a time slot"),
			ev("type", "COMPLETE", "status", "COMPLETED", "result", map[string]any{"filled": true}),
		},
	},
	"quota": {
		Name:   "quota",
		Status: 500,
		Body:   `"quota exceeded"`,
	},
}

// loadScenarios returns the built-in scenarios merged with those from path.
// File scenarios replace built-ins with the same name.
func loadScenarios(path string) (map[string]Scenario, error) {
	out := make(map[string]Scenario, len(builtinScenarios))
	for name, s := range builtinScenarios {
		out[name] = s
	}
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	var file struct {
		Scenarios []Scenario `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	for _, s := range file.Scenarios {
		if s.Name == "" {
			return nil, fmt.Errorf("parse scenarios: scenario without name")
		}
		out[s.Name] = s
	}
	return out, nil
}

func scenarioNames(scenarios map[string]Scenario) []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
