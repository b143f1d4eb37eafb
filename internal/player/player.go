// Package player consumes a relay event stream and drives a Renderer the way
// the demo page does, including the client-side run ceiling.
package player

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
	"github.com/gitoutofhere7/japan-post-demo/pkg/protocol"
	"github.com/gitoutofhere7/japan-post-demo/pkg/sse"
)

// DefaultCeiling bounds one run on the consumer side. When it expires the
// player closes the subscription and finalizes the run as complete.
const DefaultCeiling = 120 * time.Second

// Text shown by the player itself.
const (
	MsgInitializing   = "Initializing TinyFish agent..."
	MsgComplete       = "✓ Demo complete"
	MsgFinalStep      = "Form filled successfully (not submitted)"
	MsgConnectionLost = "Demo connection lost. Refresh to try again."
)

// Step labels used for locally generated steps.
const (
	LabelFinal = "Final"
	LabelError = "Error"
)

// Renderer is the presentation layer. Calls arrive from a single goroutine.
type Renderer interface {
	Status(message string)
	Progress(percent int)
	Step(id protocol.StepID, description string)
	// LiveView shows a live browser session.
	LiveView(url string)
	// Screenshot replaces the live view with a still image.
	Screenshot(imageBase64 string)
}

// Outcome is how a played run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeTimedOut is a run finalized locally by the ceiling.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeDisconnected is a stream lost before any terminal event.
	OutcomeDisconnected Outcome = "disconnected"
)

// Result summarizes one played run.
type Result struct {
	Outcome Outcome
	Events  int
	// Message is the ERROR text for failed runs.
	Message string
	Err     error
}

// Player subscribes to one relay endpoint.
type Player struct {
	url      string
	client   *http.Client
	renderer Renderer
	ceiling  time.Duration
	logger   *logger.Logger
}

// Option configures a Player.
type Option func(*Player)

// WithCeiling overrides DefaultCeiling.
func WithCeiling(d time.Duration) Option {
	return func(p *Player) { p.ceiling = d }
}

// WithHTTPClient sets the client used to subscribe.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Player) { p.client = c }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(p *Player) { p.logger = log }
}

// New creates a Player for the event stream at url.
func New(url string, r Renderer, opts ...Option) *Player {
	p := &Player{
		url:      url,
		client:   &http.Client{},
		renderer: r,
		ceiling:  DefaultCeiling,
		logger:   logger.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithFields(zap.String("component", "player"))
	return p
}

// Play runs one demo. It returns when the stream ends, the ceiling expires or
// ctx is cancelled.
func (p *Player) Play(ctx context.Context) Result {
	runCtx, cancel := context.WithTimeout(ctx, p.ceiling)
	defer cancel()

	p.renderer.Status(MsgInitializing)
	p.renderer.Progress(10)

	req, err := http.NewRequestWithContext(runCtx, http.MethodGet, p.url, nil)
	if err != nil {
		return Result{Outcome: OutcomeDisconnected, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return p.interrupted(ctx, runCtx, 0, fmt.Errorf("subscribe: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("Relay rejected subscription", zap.Int("status", resp.StatusCode))
		return p.lost(0, fmt.Errorf("subscribe: unexpected status %s", resp.Status))
	}

	var (
		received int
		failed   *protocol.Error
	)
	stream := sse.NewStream(resp.Body)
	for payload, err := range stream.All(runCtx) {
		if err != nil {
			if failed != nil {
				break
			}
			return p.interrupted(ctx, runCtx, received, err)
		}

		ev, err := protocol.Unmarshal(payload)
		if err != nil {
			p.logger.Warn("Skipping undecodable event", zap.Error(err))
			continue
		}
		received++

		switch e := ev.(type) {
		case protocol.Status:
			p.renderer.Status(e.Message)
		case protocol.Progress:
			p.renderer.Progress(e.Progress)
		case protocol.Step:
			p.renderer.Step(e.Step, e.Description)
		case protocol.BrowserURL:
			p.renderer.LiveView(e.URL)
		case protocol.Screenshot:
			p.renderer.Screenshot(e.Image)
		case protocol.Complete:
			p.complete()
			return Result{Outcome: OutcomeCompleted, Events: received}
		case protocol.Error:
			// Keep reading: the relay follows ERROR with a progress reset.
			failed = &e
			p.fail(e.Message)
		}
	}

	if failed != nil {
		return Result{Outcome: OutcomeFailed, Events: received, Message: failed.Message, Err: errors.New(failed.Message)}
	}
	return p.interrupted(ctx, runCtx, received, errors.New("stream closed"))
}

// interrupted classifies a stream that stopped before a terminal event.
func (p *Player) interrupted(parent, runCtx context.Context, received int, cause error) Result {
	if parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		p.logger.Info("Run ceiling reached, finalizing locally", zap.Duration("ceiling", p.ceiling))
		p.complete()
		return Result{Outcome: OutcomeTimedOut, Events: received}
	}
	if parent.Err() != nil {
		return Result{Outcome: OutcomeDisconnected, Events: received, Err: parent.Err()}
	}
	return p.lost(received, cause)
}

func (p *Player) lost(received int, cause error) Result {
	p.logger.Warn("Relay connection lost", zap.Error(cause))
	p.fail(MsgConnectionLost)
	return Result{Outcome: OutcomeDisconnected, Events: received, Message: MsgConnectionLost, Err: cause}
}

func (p *Player) complete() {
	p.renderer.Status(MsgComplete)
	p.renderer.Progress(100)
	p.renderer.Step(protocol.StepLabel(LabelFinal), MsgFinalStep)
}

func (p *Player) fail(message string) {
	p.renderer.Status("✗ Error: " + message)
	p.renderer.Step(protocol.StepLabel(LabelError), message)
}
