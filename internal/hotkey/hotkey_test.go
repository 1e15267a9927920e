package hotkey

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func collect(t *testing.T, l Listener, n int) []Event {
	t.Helper()
	var events []Event
	for len(events) < n {
		select {
		case ev, ok := <-l.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d events", len(events))
		}
	}
	return events
}

func TestLineListenerParsesCommands(t *testing.T) {
	input := "say\nnothing here\nS\n  quit  \n"
	l := NewLineListener(context.Background(), strings.NewReader(input))

	events := collect(t, l, 3)
	assert.Equal(t, []Event{EventForceSay, EventForceSay, EventStop}, events)

	// EOF closes the channel.
	_, ok := <-l.Events()
	assert.False(t, ok)
}

func TestLineListenerIgnoresUnknownLines(t *testing.T) {
	l := NewLineListener(context.Background(), strings.NewReader("dance\nfly\n"))
	_, ok := <-l.Events()
	assert.False(t, ok, "unknown commands produce no events")
}

func TestChanListenerPushAndDrop(t *testing.T) {
	l := NewChanListener()
	for i := 0; i < 10; i++ {
		l.Push(EventForceSay) // overflow past the buffer must not block
	}
	events := 0
	for {
		select {
		case <-l.Events():
			events++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 4, events, "buffered events only, extras dropped")
}
