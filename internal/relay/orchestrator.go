// Package relay runs one provider automation per consumer request and streams
// its normalized progress to a Sink.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
	"github.com/gitoutofhere7/japan-post-demo/internal/common/tracing"
	"github.com/gitoutofhere7/japan-post-demo/internal/demo"
	"github.com/gitoutofhere7/japan-post-demo/internal/events"
	"github.com/gitoutofhere7/japan-post-demo/internal/events/bus"
	"github.com/gitoutofhere7/japan-post-demo/internal/provider"
	"github.com/gitoutofhere7/japan-post-demo/pkg/protocol"
	"github.com/gitoutofhere7/japan-post-demo/pkg/sse"
)

// ErrStreamEnded is the cause of a run whose provider stream closed without a
// COMPLETE or ERROR event.
var ErrStreamEnded = errors.New("stream ended unexpectedly")

// State is the lifecycle position of a run.
type State string

const (
	StateInit           State = "INIT"
	StatePreambleSent   State = "PREAMBLE_SENT"
	StateUpstreamCalled State = "UPSTREAM_CALLED"
	StateStreaming      State = "STREAMING"
	StateCompleted      State = "COMPLETED"
	StateFailed         State = "FAILED"
	StateAbandoned      State = "ABANDONED"
)

// Result summarizes a finished run.
type Result struct {
	RunID string
	State State
	// Events is the number of protocol events delivered to the sink.
	Events int
	// Err is the failure cause for FAILED and ABANDONED runs.
	Err error
}

// Options configures the provider request and end-of-stream handling.
type Options struct {
	TargetURL string
	Mode      string
	TimeoutMS int
	// AbandonAsError reports a stream that ends without a terminal event as a
	// fatal ERROR. When false the sink is closed silently.
	AbandonAsError bool
	// SubjectPrefix is prepended to lifecycle event subjects.
	SubjectPrefix string
	// MaxFrameBytes bounds one provider stream line. Zero uses
	// sse.DefaultMaxLineBytes.
	MaxFrameBytes int
}

// Orchestrator drives runs. It holds no per-run state and is safe for
// concurrent use.
type Orchestrator struct {
	generator demo.Generator
	runner    provider.Runner
	bus       bus.EventBus
	opts      Options
	logger    *logger.Logger
}

// NewOrchestrator creates an Orchestrator. eventBus may be nil.
func NewOrchestrator(gen demo.Generator, runner provider.Runner, eventBus bus.EventBus, opts Options, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		generator: gen,
		runner:    runner,
		bus:       eventBus,
		opts:      opts,
		logger:    log.WithFields(zap.String("component", "relay")),
	}
}

// run is the per-run state.
type run struct {
	o      *Orchestrator
	id     string
	sink   *onceSink
	log    *logger.Logger
	state  State
	sent   int
	broken bool
}

// Run performs one automation and streams its events to sink. The sink is
// closed exactly once before Run returns, including when a panic is
// recovered. Cancelling ctx aborts the provider request.
func (o *Orchestrator) Run(ctx context.Context, sink Sink) (res Result) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		o:     o,
		id:    uuid.New().String(),
		sink:  newOnceSink(sink),
		state: StateInit,
	}
	r.log = o.logger.WithContext(ctx).WithRunID(r.id)

	ctx, span := tracing.TraceRun(ctx, r.id, transportOf(sink))

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Relay run panicked", zap.Any("panic", p), zap.Stack("stack"))
			res = r.safeFail(ctx, fmt.Errorf("relay panic: %v", p))
		}
		if err := r.sink.Close(); err != nil {
			r.log.Debug("Sink close failed", zap.Error(err))
		}
		tracing.TraceRunResult(span, string(res.State), res.Events, res.Err)
		span.End()
		o.publishResult(ctx, res)
		r.log.Info("Relay run finished",
			zap.String("state", string(res.State)),
			zap.Int("events", res.Events),
			zap.NamedError("cause", res.Err))
	}()

	return r.execute(ctx)
}

func (r *run) execute(ctx context.Context) Result {
	o := r.o
	in := o.generator.Generate()
	o.publish(ctx, r.id, events.RunStarted, map[string]interface{}{
		"tracking_number": in.TrackingNumber,
	})
	r.log.Info("Relay run started", zap.String("tracking_number", in.TrackingNumber))

	for _, ev := range preamble(in) {
		if err := r.send(ctx, ev); err != nil {
			return r.abandon(err)
		}
	}
	r.state = StatePreambleSent

	body, err := o.runner.Run(ctx, provider.RunRequest{
		URL:  o.opts.TargetURL,
		Goal: demo.Goal(in),
		Options: provider.RunOptions{
			Mode:      o.opts.Mode,
			TimeoutMS: o.opts.TimeoutMS,
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return r.abandon(ctx.Err())
		}
		return r.fail(ctx, err)
	}
	defer body.Close()
	r.state = StateUpstreamCalled

	for _, ev := range []protocol.Event{
		protocol.Progress{Progress: progressCalled},
		protocol.Step{Step: protocol.StepNumber(3), Description: "Agent is filling out the form..."},
	} {
		if err := r.send(ctx, ev); err != nil {
			return r.abandon(err)
		}
	}
	r.state = StateStreaming

	return r.stream(ctx, body)
}

// stream relays provider frames until a terminal event or end of data.
func (r *run) stream(ctx context.Context, body io.Reader) Result {
	norm := NewNormalizer()
	opts := []sse.DecoderOption{sse.WithDropHandler(func(size int) {
		r.log.Error("Dropped oversized provider frame",
			zap.Int("bytes_seen", size),
			zap.Int("limit", r.frameLimit()))
	})}
	if n := r.o.opts.MaxFrameBytes; n > 0 {
		opts = append(opts, sse.WithMaxLineBytes(n))
	}
	frames := sse.NewStream(body, opts...)

	for payload, err := range frames.All(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return r.abandon(ctx.Err())
			}
			return r.fail(ctx, fmt.Errorf("read provider stream: %w", err))
		}

		upstream, err := provider.ParseEvent(payload)
		if err != nil {
			r.log.Warn("Skipping malformed provider event",
				zap.ByteString("payload", truncate(payload, 256)),
				zap.Error(err))
			continue
		}
		tracing.TraceUpstreamEvent(ctx, upstream.Type())
		r.log.Debug("Provider event", zap.String("type", upstream.Type()))

		out, fatal := norm.Apply(upstream)
		for _, ev := range out {
			if err := r.send(ctx, ev); err != nil {
				return r.abandon(err)
			}
		}
		if fatal != nil {
			return r.fail(ctx, fatal)
		}
		if norm.Done() {
			r.state = StateCompleted
			return r.result(nil)
		}
	}

	if ctx.Err() != nil {
		return r.abandon(ctx.Err())
	}
	if dropped := frames.Dropped(); dropped > 0 {
		r.log.Error("Provider stream ended after dropping oversized frames", zap.Int("dropped", dropped))
	}
	if !r.o.opts.AbandonAsError {
		r.state = StateAbandoned
		return r.result(ErrStreamEnded)
	}
	res := r.fail(ctx, ErrStreamEnded)
	res.State = StateAbandoned
	return res
}

func (r *run) frameLimit() int {
	if n := r.o.opts.MaxFrameBytes; n > 0 {
		return n
	}
	return sse.DefaultMaxLineBytes
}

// send forwards one event. A failure marks the consumer gone.
func (r *run) send(ctx context.Context, ev protocol.Event) error {
	if err := r.sink.Send(ctx, ev); err != nil {
		r.broken = true
		return err
	}
	r.sent++
	return nil
}

// fail emits the fatal ERROR and the PROGRESS(0) reset.
func (r *run) fail(ctx context.Context, cause error) Result {
	r.state = StateFailed
	r.log.Error("Relay run failed", zap.Error(cause))
	if r.broken {
		return r.result(cause)
	}
	for _, ev := range []protocol.Event{
		protocol.Error{Message: cause.Error()},
		protocol.Progress{Progress: 0},
	} {
		if err := r.send(ctx, ev); err != nil {
			r.log.Debug("Consumer gone before error was delivered", zap.Error(err))
			break
		}
	}
	return r.result(cause)
}

// safeFail is fail for the panic path; a second panic only loses the ERROR.
func (r *run) safeFail(ctx context.Context, cause error) (res Result) {
	defer func() {
		if recover() != nil {
			r.state = StateFailed
			res = r.result(cause)
		}
	}()
	return r.fail(ctx, cause)
}

// abandon stops without sending anything more.
func (r *run) abandon(cause error) Result {
	r.state = StateAbandoned
	r.log.Info("Consumer gone, abandoning run", zap.Error(cause))
	return r.result(cause)
}

func (r *run) result(err error) Result {
	return Result{RunID: r.id, State: r.state, Events: r.sent, Err: err}
}

func preamble(in demo.Input) []protocol.Event {
	return []protocol.Event{
		protocol.Status{Message: "Starting TinyFish agent..."},
		protocol.Progress{Progress: progressStarting},
		protocol.Step{Step: protocol.StepNumber(1), Description: "Navigating to Japan Post redelivery form"},
		protocol.Progress{Progress: progressNavigated},
		protocol.Step{Step: protocol.StepNumber(2), Description: "Using tracking number: " + in.TrackingNumber},
	}
}

func (o *Orchestrator) publishResult(ctx context.Context, res Result) {
	eventType := events.RunCompleted
	switch res.State {
	case StateFailed:
		eventType = events.RunFailed
	case StateAbandoned:
		eventType = events.RunAbandoned
	}
	data := map[string]interface{}{
		"state":  string(res.State),
		"events": res.Events,
	}
	if res.Err != nil {
		data["error"] = res.Err.Error()
	}
	o.publish(ctx, res.RunID, eventType, data)
}

// publish is fire-and-forget; bus failures never affect the run.
func (o *Orchestrator) publish(ctx context.Context, runID, eventType string, data map[string]interface{}) {
	if o.bus == nil {
		return
	}
	subject := events.Subject(o.opts.SubjectPrefix, eventType)
	if err := o.bus.Publish(context.WithoutCancel(ctx), subject, bus.NewRunEvent(eventType, events.Source, runID, data)); err != nil {
		o.logger.Warn("Failed to publish run event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
