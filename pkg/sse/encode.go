package sse

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

// ErrMultiline is returned when a payload would break line framing.
var ErrMultiline = errors.New("sse: payload contains a newline")

// Encode writes one `data: <payload>\n\n` frame.
func Encode(w io.Writer, payload []byte) error {
	if bytes.ContainsAny(payload, "\r\n") {
		return ErrMultiline
	}
	frame := make([]byte, 0, len(DataPrefix)+len(payload)+2)
	frame = append(frame, DataPrefix...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	_, err := w.Write(frame)
	return err
}

// SetHeaders sets the response headers of an event stream: no caching,
// persistent connection, open cross-origin access and no proxy buffering.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("X-Accel-Buffering", "no")
}
