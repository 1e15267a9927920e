package dispatch

import (
	"fmt"
	"time"

	"vrcagent/internal/action"
	"vrcagent/internal/logging"
	"vrcagent/internal/osc"
)

// Sink executes one merged action against an output device. The OSC sink is
// the real one; tests and dry runs substitute fakes.
type Sink interface {
	Execute(a action.Action) error
}

// OSCSink drives VRChat over the local OSC input port.
type OSCSink struct {
	client    *osc.Client
	chatLimit int
}

// NewOSCSink wraps an OSC client. chatLimit caps chatbox messages in runes.
func NewOSCSink(client *osc.Client, chatLimit int) *OSCSink {
	if chatLimit <= 0 {
		chatLimit = 144
	}
	return &OSCSink{client: client, chatLimit: chatLimit}
}

// lookHoldPerUnit converts a relative look delta into an axis hold time.
// The deltas are sized for mouse movement; 3ms per unit lands close to the
// same rotation through the LookHorizontal axis.
const lookHoldPerUnit = 3 * time.Millisecond

// Execute implements Sink.
func (s *OSCSink) Execute(a action.Action) error {
	switch a.Kind {
	case action.KindMove:
		axis, value := moveAxis(a.Direction)
		if axis == "" {
			return fmt.Errorf("unknown move direction %q", a.Direction)
		}
		hold := a.Hold()
		if hold <= 0 {
			hold = 300 * time.Millisecond
		}
		return s.client.Axis(axis, value, hold)
	case action.KindLook, action.KindMouseClick:
		return s.look(a)
	case action.KindJump:
		return s.client.Button("Jump")
	case action.KindCrouch:
		return s.client.Button("Crouch")
	case action.KindProne:
		return s.client.Button("Prone")
	case action.KindChat:
		return s.client.Chat(a.Text, s.chatLimit)
	case action.KindWait:
		time.Sleep(a.Hold())
		return nil
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

func (s *OSCSink) look(a action.Action) error {
	if a.Kind == action.KindMouseClick {
		// No interactable targeting over OSC; a click degrades to a jump-less tap.
		return s.client.Button("UseRight")
	}
	if a.DX != 0 {
		if err := s.client.Axis("LookHorizontal", sign(a.DX), lookHold(a.DX)); err != nil {
			return err
		}
	}
	if a.DY != 0 {
		return s.client.Axis("LookVertical", -sign(a.DY), lookHold(a.DY))
	}
	return nil
}

func lookHold(delta int) time.Duration {
	if delta < 0 {
		delta = -delta
	}
	hold := time.Duration(delta) * lookHoldPerUnit
	if hold < 40*time.Millisecond {
		hold = 40 * time.Millisecond
	}
	if hold > 900*time.Millisecond {
		hold = 900 * time.Millisecond
	}
	return hold
}

func sign(v int) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func moveAxis(direction string) (string, float64) {
	switch direction {
	case "w":
		return "Vertical", 1
	case "s":
		return "Vertical", -1
	case "d":
		return "Horizontal", 1
	case "a":
		return "Horizontal", -1
	}
	return "", 0
}

// LogSink prints what would have been sent. Used by --dry-run.
type LogSink struct{}

// Execute implements Sink by logging the action instead of sending it.
func (LogSink) Execute(a action.Action) error {
	switch a.Kind {
	case action.KindMove:
		logging.Dispatch("dry-run: move %s %.2fs", a.Direction, a.Seconds)
	case action.KindLook:
		logging.Dispatch("dry-run: look dx=%d dy=%d", a.DX, a.DY)
	case action.KindChat:
		logging.Dispatch("dry-run: chat %q", a.Text)
	case action.KindWait:
		time.Sleep(a.Hold())
	default:
		logging.Dispatch("dry-run: %s", a.Kind)
	}
	return nil
}
