// Package hotkey delivers operator override events into the control loop:
// an extra forced utterance, or an immediate stop. Events arrive on a
// channel and outrank both instinct and intent in the dispatcher.
package hotkey

import (
	"bufio"
	"context"
	"io"
	"strings"

	"vrcagent/internal/logging"
)

// Event is an operator override.
type Event int

const (
	// EventForceSay asks the agent to emit an extra chat line now.
	EventForceSay Event = iota
	// EventStop asks the agent to shut down immediately.
	EventStop
)

// Listener is an asynchronous override source.
type Listener interface {
	// Events yields override events until the listener stops.
	Events() <-chan Event
}

// ChanListener is a trivial Listener backed by a caller-owned channel.
// Tests and embedders push events directly.
type ChanListener struct {
	ch chan Event
}

// NewChanListener returns a listener with a small buffered channel.
func NewChanListener() *ChanListener {
	return &ChanListener{ch: make(chan Event, 4)}
}

// Events implements Listener.
func (l *ChanListener) Events() <-chan Event {
	return l.ch
}

// Push delivers an event, dropping it when the loop is not keeping up.
// Overrides are edge-triggered; buffering stale ones helps nobody.
func (l *ChanListener) Push(ev Event) {
	select {
	case l.ch <- ev:
	default:
		logging.Hotkey("override dropped, channel full")
	}
}

// LineListener reads operator commands line-by-line (stdin in practice):
// "say" forces an extra utterance, "stop" or "quit" stops the agent.
type LineListener struct {
	ch chan Event
}

// NewLineListener starts reading r until EOF or ctx is done.
func NewLineListener(ctx context.Context, r io.Reader) *LineListener {
	l := &LineListener{ch: make(chan Event, 4)}
	go func() {
		defer close(l.ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			var ev Event
			switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
			case "say", "s":
				ev = EventForceSay
			case "stop", "quit", "q":
				ev = EventStop
			default:
				continue
			}
			logging.Hotkey("override event: %d", ev)
			select {
			case l.ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return l
}

// Events implements Listener.
func (l *LineListener) Events() <-chan Event {
	return l.ch
}
