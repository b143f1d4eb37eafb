// Package sse implements the line-framed `data: <payload>` framing shared by the
// automation provider's stream and the relay's own event stream.
package sse

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
)

// DataPrefix marks a line that carries one payload.
const DataPrefix = "data: "

// DefaultMaxLineBytes bounds a single line, terminator excluded. Provider
// results embed extracted page data, so the bound is generous.
const DefaultMaxLineBytes = 16 * 1024 * 1024

// Decoder splits an arbitrarily chunked byte stream into payloads. Only complete,
// newline-terminated lines that start with DataPrefix produce a payload; every
// other line is discarded. A line longer than the limit is dropped whole no
// matter how the stream was chunked. A Decoder is not safe for concurrent use.
type Decoder struct {
	prefix     []byte
	maxLine    int
	onDrop     func(size int)
	buf        []byte
	discarding bool
	dropped    int
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxLineBytes overrides DefaultMaxLineBytes. Lines longer than n are dropped.
func WithMaxLineBytes(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxLine = n
		}
	}
}

// WithDropHandler registers fn to be called once per dropped line, as soon as
// the line is known to exceed the limit. size is the number of bytes of the line
// seen at that point.
func WithDropHandler(fn func(size int)) DecoderOption {
	return func(d *Decoder) {
		d.onDrop = fn
	}
}

// NewDecoder creates a Decoder for DataPrefix-framed lines.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		prefix:  []byte(DataPrefix),
		maxLine: DefaultMaxLineBytes,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Limit returns the maximum accepted line length.
func (d *Decoder) Limit() int {
	return d.maxLine
}

// Feed appends chunk to the carry-over buffer and returns the payloads of every
// line it completed, prefix stripped, in stream order. Returned slices do not
// alias the decoder's buffer.
func (d *Decoder) Feed(chunk []byte) [][]byte {
	var out [][]byte
	d.buf = append(d.buf, chunk...)

	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]

		if d.discarding {
			// Tail of a line already counted as dropped.
			d.discarding = false
			continue
		}
		if len(line) > d.maxLine {
			d.drop(len(line))
			continue
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if !bytes.HasPrefix(line, d.prefix) {
			continue
		}
		payload := make([]byte, len(line)-len(d.prefix))
		copy(payload, line[len(d.prefix):])
		out = append(out, payload)
	}

	// The buffer now holds only the unterminated tail of the current line.
	if len(d.buf) > d.maxLine {
		if !d.discarding {
			d.drop(len(d.buf))
		}
		d.buf = nil
		d.discarding = true
	}

	// Compact so the backing array does not grow with the stream.
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	} else {
		d.buf = append([]byte(nil), d.buf...)
	}
	return out
}

func (d *Decoder) drop(size int) {
	d.dropped++
	if d.onDrop != nil {
		d.onDrop(size)
	}
}

// Pending returns the length of the buffered, not yet terminated fragment.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Dropped returns how many oversized lines were discarded.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Reset discards any buffered fragment.
func (d *Decoder) Reset() {
	d.buf = nil
	d.discarding = false
}

// Stream is a lazy, finite, non-restartable sequence of payloads read from an
// io.Reader. A trailing unterminated fragment at end of data is dropped.
type Stream struct {
	r       io.Reader
	dec     *Decoder
	readBuf []byte
	queue   [][]byte
	err     error
}

// NewStream wraps r. The reader is consumed on demand by Next.
func NewStream(r io.Reader, opts ...DecoderOption) *Stream {
	return &Stream{
		r:       r,
		dec:     NewDecoder(opts...),
		readBuf: make([]byte, 32*1024),
	}
}

// Next returns the next payload. It returns io.EOF once the reader is exhausted
// and every completed line has been returned. Any other read error is returned
// as is, after the payloads completed before it.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	for len(s.queue) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		if err := ctx.Err(); err != nil {
			s.err = err
			return nil, err
		}
		n, err := s.r.Read(s.readBuf)
		if n > 0 {
			s.queue = s.dec.Feed(s.readBuf[:n])
		}
		if err != nil {
			s.err = err
		}
	}
	payload := s.queue[0]
	s.queue = s.queue[1:]
	return payload, nil
}

// Dropped reports oversized lines discarded so far.
func (s *Stream) Dropped() int {
	return s.dec.Dropped()
}

// All exposes the stream as an iterator. A non-EOF error is yielded once as
// the final element.
func (s *Stream) All(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			payload, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(payload, nil) {
				return
			}
		}
	}
}
