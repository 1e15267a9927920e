// Package action defines the atomic actuator commands shared by the
// instinct generator, the planner, and the dispatcher.
package action

import (
	"strconv"
	"time"
)

// Kind enumerates the supported actuator commands.
type Kind string

const (
	KindMove       Kind = "move"       // WASD step: Direction + Seconds
	KindLook       Kind = "look"       // relative view rotation: DX/DY
	KindJump       Kind = "jump"
	KindCrouch     Kind = "toggle_crouch"
	KindProne      Kind = "toggle_prone"
	KindChat       Kind = "chat_send" // Text to the in-game chatbox
	KindWait       Kind = "wait"      // Seconds pause between commands
	KindMouseClick Kind = "mouse_click"
)

// Source tags where a dispatched action came from, for diagnostics.
type Source string

const (
	SourceInstinct Source = "instinct"
	SourceIntent   Source = "intent"
	SourceOverride Source = "override"
)

// Action is one atomic actuator command. Ephemeral: generated per tick and
// never persisted beyond the memory summary.
type Action struct {
	Kind      Kind    `json:"type"`
	Direction string  `json:"direction,omitempty"` // w|a|s|d for move
	Seconds   float64 `json:"seconds,omitempty"`
	DX        int     `json:"dx,omitempty"`
	DY        int     `json:"dy,omitempty"`
	Text      string  `json:"text,omitempty"`
	Button    string  `json:"button,omitempty"`
}

// Hold returns the press duration for timed actions, floored at zero.
func (a Action) Hold() time.Duration {
	if a.Seconds <= 0 {
		return 0
	}
	return time.Duration(a.Seconds * float64(time.Second))
}

// Actuator identifies which output channel an action occupies. The
// dispatcher resolves conflicts per actuator, not per action kind.
type Actuator string

const (
	ActuatorMove Actuator = "move"
	ActuatorLook Actuator = "look"
	ActuatorJump Actuator = "jump"
	ActuatorChat Actuator = "chat"
	ActuatorWait Actuator = "wait"
)

// Actuator maps the action to the output channel it occupies.
func (a Action) Actuator() Actuator {
	switch a.Kind {
	case KindMove:
		return ActuatorMove
	case KindLook, KindMouseClick:
		return ActuatorLook
	case KindJump, KindCrouch, KindProne:
		return ActuatorJump
	case KindChat:
		return ActuatorChat
	default:
		return ActuatorWait
	}
}

// Dispatched is an action that has been merged and tagged for output.
type Dispatched struct {
	Action Action
	Source Source
	ID     string // dispatch correlation id
}

// Signature builds a compact fingerprint of an action list, used to detect
// the planner or instinct emitting the same script repeatedly. Look deltas
// are bucketed so tiny jitter differences still match.
func Signature(actions []Action) string {
	sig := ""
	n := len(actions)
	if n > 5 {
		n = 5
	}
	for i := 0; i < n; i++ {
		a := actions[i]
		if i > 0 {
			sig += "|"
		}
		switch a.Kind {
		case KindMove:
			sig += "move:" + a.Direction
		case KindLook:
			sig += "look:" + strconv.Itoa(a.DX/10) + ":" + strconv.Itoa(a.DY/10)
		default:
			sig += string(a.Kind)
		}
	}
	return sig
}
