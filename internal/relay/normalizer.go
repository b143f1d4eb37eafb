package relay

import (
	"github.com/gitoutofhere7/japan-post-demo/internal/provider"
	"github.com/gitoutofhere7/japan-post-demo/pkg/protocol"
)

// Progress bookkeeping shared by the preamble and the normalizer.
const (
	progressStarting  = 10
	progressNavigated = 20
	progressCalled    = 30
	progressStep      = 5
	progressCeiling   = 95
	progressDone      = 100

	// firstStreamedStep follows the three preamble steps.
	firstStreamedStep = 4
)

// Messages surfaced to the front-end.
const (
	msgAgentStarted    = "TinyFish agent started"
	msgDefaultAction   = "Performing action..."
	msgFormFilled      = "Form filled successfully! (Not submitted)"
	msgAutomationFail  = "Automation failed"
	msgUnknownProvider = "Unknown error from TinyFish"
)

// ProviderFailure is a failure signalled by the provider itself, either an
// ERROR event or a COMPLETE with a non-success status.
type ProviderFailure struct {
	Message string
}

func (e *ProviderFailure) Error() string { return e.Message }

// Normalizer maps provider events onto the protocol, keeping PROGRESS
// non-decreasing and STEP numbers contiguous. It is not safe for concurrent
// use; each run owns one.
type Normalizer struct {
	progress int
	nextStep int
	done     bool
}

// NewNormalizer returns a Normalizer positioned after the preamble.
func NewNormalizer() *Normalizer {
	return &Normalizer{progress: progressCalled, nextStep: firstStreamedStep}
}

// Progress returns the last emitted progress value.
func (n *Normalizer) Progress() int { return n.progress }

// Done reports whether a terminal event has been produced.
func (n *Normalizer) Done() bool { return n.done }

// Apply translates one provider event. A non-nil error is a fatal
// *ProviderFailure; the caller emits the ERROR and reset itself. Once done,
// every input yields nothing.
func (n *Normalizer) Apply(ev provider.Event) ([]protocol.Event, error) {
	if n.done {
		return nil, nil
	}

	switch e := ev.(type) {
	case provider.Started:
		return []protocol.Event{protocol.Status{Message: msgAgentStarted, RunID: e.RunID}}, nil

	case provider.StreamingURL:
		if e.URL == "" {
			return nil, nil
		}
		return []protocol.Event{protocol.BrowserURL{URL: e.URL}}, nil

	case provider.Action:
		n.progress = min(n.progress+progressStep, progressCeiling)
		desc := e.Description
		if desc == "" {
			desc = msgDefaultAction
		}
		return []protocol.Event{
			protocol.Progress{Progress: n.progress},
			n.step(desc),
		}, nil

	case provider.Complete:
		n.done = true
		if !e.Succeeded() {
			return nil, &ProviderFailure{Message: orDefault(e.Error, msgAutomationFail)}
		}
		n.progress = progressDone
		return []protocol.Event{
			protocol.Progress{Progress: progressDone},
			n.step(msgFormFilled),
			protocol.Complete{Result: e.Result},
		}, nil

	case provider.Failure:
		n.done = true
		return nil, &ProviderFailure{Message: orDefault(e.Message, msgUnknownProvider)}

	default:
		return nil, nil
	}
}

func (n *Normalizer) step(desc string) protocol.Step {
	s := protocol.Step{Step: protocol.StepNumber(n.nextStep), Description: desc}
	n.nextStep++
	return s
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
