package relay

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/gitoutofhere7/japan-post-demo/pkg/protocol"
)

// providerFrames is the alphabet random provider scripts are drawn from.
var providerFrames = []string{
	`{"type":"STARTED","runId":"r"}`,
	`{"type":"STREAMING_URL","streamingUrl":"https://live/r"}`,
	`{"type":"BROWSER_URL","url":"https://live/r"}`,
	`{"type":"PROGRESS","purpose":"click"}`,
	`{"type":"ACTION","description":"type"}`,
	`{"type":"ACTION"}`,
	`{"type":"HEARTBEAT"}`,
	`{"type":"PROGRESS"`,
	`not json`,
	`{"type":"COMPLETE","status":"COMPLETED","resultJson":{"ok":true}}`,
	`{"type":"COMPLETE","status":"FAILED","error":"blocked"}`,
	`{"type":"ERROR","message":"boom"}`,
}

// checkInvariants validates a relayed event sequence.
func checkInvariants(events []protocol.Event) error {
	progress := -1
	nextStep := 1
	terminals := 0

	for i, ev := range events {
		if terminals > 0 {
			if _, isErr := events[i-1].(protocol.Error); isErr && ev == (protocol.Progress{Progress: 0}) && i == len(events)-1 {
				continue
			}
			return fmt.Errorf("event %d (%s) follows a terminal event", i, ev.Kind())
		}

		switch e := ev.(type) {
		case protocol.Progress:
			if e.Progress < 0 || e.Progress > 100 {
				return fmt.Errorf("progress %d out of range", e.Progress)
			}
			if e.Progress < progress {
				return fmt.Errorf("progress decreased from %d to %d", progress, e.Progress)
			}
			progress = e.Progress
		case protocol.Step:
			if e.Step.IsLabel() || e.Step.Number != nextStep {
				return fmt.Errorf("step %s, want %d", e.Step, nextStep)
			}
			nextStep++
		case protocol.Complete, protocol.Error:
			terminals++
		}
	}
	return nil
}

func TestRun_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("relayed events keep progress, step and terminal invariants", prop.ForAll(
		func(picks []int, abandonAsError bool) string {
			lines := make([]string, len(picks))
			for i, p := range picks {
				lines[i] = providerFrames[p]
			}
			sink := &recordingSink{}
			res := newTestOrchestrator(&scriptRunner{body: frames(lines...)}, nil, abandonAsError).
				Run(context.Background(), sink)

			if sink.closes != 1 {
				return fmt.Sprintf("sink closed %d times", sink.closes)
			}
			if err := checkInvariants(sink.Events()); err != nil {
				return err.Error()
			}
			if res.Events != len(sink.Events()) {
				return fmt.Sprintf("result counts %d events, sink got %d", res.Events, len(sink.Events()))
			}
			switch res.State {
			case StateCompleted, StateFailed, StateAbandoned:
			default:
				return "non-final state " + string(res.State)
			}
			return ""
		},
		gen.SliceOf(gen.IntRange(0, len(providerFrames)-1)),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestCheckInvariantsRejects(t *testing.T) {
	bad := [][]protocol.Event{
		{protocol.Progress{Progress: 20}, protocol.Progress{Progress: 10}},
		{protocol.Step{Step: protocol.StepNumber(2)}},
		{protocol.Complete{}, protocol.Progress{Progress: 100}},
		{protocol.Complete{}, protocol.Error{Message: "x"}},
		{protocol.Progress{Progress: 101}},
	}
	for i, events := range bad {
		if checkInvariants(events) == nil {
			t.Errorf("case %d: expected a violation", i)
		}
	}
}
