package engine

import (
	"errors"
	"strings"
)

// StreamPhase tracks the lifecycle of one in-flight completion.
type StreamPhase int

const (
	StreamIdle StreamPhase = iota
	StreamAwaitingFirstToken
	StreamStreaming
	StreamSettled
	StreamFailed
)

func (p StreamPhase) String() string {
	switch p {
	case StreamIdle:
		return "idle"
	case StreamAwaitingFirstToken:
		return "awaiting-first-token"
	case StreamStreaming:
		return "streaming"
	case StreamSettled:
		return "settled"
	case StreamFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrStreamActive is returned when a completion is requested while one
// is already in flight.
var ErrStreamActive = errors.New("completion already in flight")

// Coordinator accumulates the deltas of a single completion stream.
// Observers only ever see the latest full accumulated string, never
// individual deltas, so published content grows monotonically.
type Coordinator struct {
	phase StreamPhase
	model string
	buf   strings.Builder
	err   error
}

func (c *Coordinator) Phase() StreamPhase { return c.phase }

// Active reports whether a stream is open and not yet settled or failed.
func (c *Coordinator) Active() bool {
	return c.phase == StreamAwaitingFirstToken || c.phase == StreamStreaming
}

func (c *Coordinator) Text() string  { return c.buf.String() }
func (c *Coordinator) Model() string { return c.model }
func (c *Coordinator) Err() error    { return c.err }

// Begin opens a new stream for model. Settled and Failed are terminal
// for the previous stream, so beginning from them resets state.
func (c *Coordinator) Begin(model string) error {
	if c.Active() {
		return ErrStreamActive
	}
	c.phase = StreamAwaitingFirstToken
	c.model = model
	c.err = nil
	c.buf.Reset()
	return nil
}

// Append folds one delta into the accumulator and returns the full
// accumulated text. first is true exactly once per stream, on the
// delta that moves the coordinator from AwaitingFirstToken to
// Streaming.
func (c *Coordinator) Append(delta string) (text string, first bool) {
	switch c.phase {
	case StreamAwaitingFirstToken:
		first = true
		c.phase = StreamStreaming
	case StreamStreaming:
	default:
		return c.buf.String(), false
	}
	c.buf.WriteString(delta)
	return c.buf.String(), first
}

// Settle marks the stream complete and returns the final text and the
// model it was produced with.
func (c *Coordinator) Settle() (text, model string) {
	c.phase = StreamSettled
	return c.buf.String(), c.model
}

// Fail marks the stream failed, discarding whatever accumulated.
func (c *Coordinator) Fail(err error) {
	c.phase = StreamFailed
	c.err = err
}
