package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gitoutofhere7/japan-post-demo/pkg/protocol"
	"github.com/gitoutofhere7/japan-post-demo/pkg/sse"
)

// Transport names reported in logs and traces.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// ErrSinkClosed is returned by Send after Close.
var ErrSinkClosed = errors.New("sink closed")

// Sink receives the protocol events of one run in order. A Send error means
// the consumer is gone. Close is called exactly once by the orchestrator.
type Sink interface {
	Send(ctx context.Context, ev protocol.Event) error
	Close() error
}

// transporter is implemented by sinks that can name their transport.
type transporter interface {
	Transport() string
}

func transportOf(s Sink) string {
	if t, ok := s.(transporter); ok {
		return t.Transport()
	}
	return "custom"
}

// onceSink guards a Sink so that Close reaches it once and Send after Close
// fails.
type onceSink struct {
	inner  Sink
	once   sync.Once
	mu     sync.Mutex
	closed bool
	err    error
}

func newOnceSink(s Sink) *onceSink {
	return &onceSink{inner: s}
}

func (s *onceSink) Send(ctx context.Context, ev protocol.Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSinkClosed
	}
	return s.inner.Send(ctx, ev)
}

func (s *onceSink) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.err = s.inner.Close()
	})
	return s.err
}

// SSESink writes events as `data: <json>` frames and flushes after each one.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink sets the event-stream headers on w. It fails when w cannot flush.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	sse.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSESink{w: w, flusher: flusher}, nil
}

// Transport implements transporter.
func (s *SSESink) Transport() string { return TransportSSE }

// Send implements Sink.
func (s *SSESink) Send(ctx context.Context, ev protocol.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := protocol.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind(), err)
	}
	if err := sse.Encode(s.w, data); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Kind(), err)
	}
	s.flusher.Flush()
	return nil
}

// Close implements Sink. The HTTP server ends the response when the handler
// returns.
func (s *SSESink) Close() error {
	s.flusher.Flush()
	return nil
}

const wsWriteWait = 10 * time.Second

// WebSocketSink sends each event as one JSON text message and ends the run
// with a normal close frame.
type WebSocketSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWebSocketSink wraps an upgraded connection. The sink owns conn.
func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn}
}

// Transport implements transporter.
func (s *WebSocketSink) Transport() string { return TransportWebSocket }

// Send implements Sink.
func (s *WebSocketSink) Send(ctx context.Context, ev protocol.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := protocol.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Kind(), err)
	}
	return nil
}

// Close implements Sink.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	return s.conn.Close()
}
