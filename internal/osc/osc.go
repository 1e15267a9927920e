// Package osc implements the minimal subset of OSC 1.0 needed to drive
// VRChat: /input axes and buttons plus /chatbox/input, sent over UDP.
package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"vrcagent/internal/logging"
)

// EncodeMessage builds an OSC 1.0 message: padded address, type tag string,
// then arguments. Supported argument types: int32/int, float32/float64,
// string, bool (encoded as the T/F type tags with no payload).
func EncodeMessage(addr string, args ...interface{}) ([]byte, error) {
	if addr == "" || addr[0] != '/' {
		return nil, fmt.Errorf("invalid osc address %q", addr)
	}

	var buf bytes.Buffer
	writePaddedString(&buf, addr)

	tags := ","
	var payload bytes.Buffer
	for _, arg := range args {
		switch v := arg.(type) {
		case int32:
			tags += "i"
			binary.Write(&payload, binary.BigEndian, v)
		case int:
			tags += "i"
			binary.Write(&payload, binary.BigEndian, int32(v))
		case float32:
			tags += "f"
			binary.Write(&payload, binary.BigEndian, v)
		case float64:
			tags += "f"
			binary.Write(&payload, binary.BigEndian, float32(v))
		case string:
			tags += "s"
			writePaddedString(&payload, v)
		case bool:
			if v {
				tags += "T"
			} else {
				tags += "F"
			}
		default:
			return nil, fmt.Errorf("unsupported osc argument type %T", arg)
		}
	}
	writePaddedString(&buf, tags)
	buf.Write(payload.Bytes())
	return buf.Bytes(), nil
}

// writePaddedString writes a NUL-terminated string padded to a 4-byte boundary.
func writePaddedString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	pad := 4 - (len(s) % 4)
	for i := 0; i < pad; i++ {
		buf.WriteByte(0)
	}
}

// Client sends OSC messages to a single UDP target (VRChat's input port).
type Client struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
	held map[string]bool // /input buttons currently pressed
}

// Dial connects the client. UDP "dialing" only resolves the target; the
// first Send surfaces real reachability problems, which the dispatcher
// treats as droppable.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("osc dial %s: %w", addr, err)
	}
	return &Client{addr: addr, conn: conn, held: make(map[string]bool)}, nil
}

// Send encodes and transmits one message.
func (c *Client) Send(addr string, args ...interface{}) error {
	data, err := EncodeMessage(addr, args...)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("osc client closed")
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("osc send %s: %w", addr, err)
	}
	return nil
}

// Axis presses a continuous input (e.g. /input/Vertical) at value for the
// hold duration, then releases it to zero.
func (c *Client) Axis(name string, value float64, hold time.Duration) error {
	if value > 1.0 {
		value = 1.0
	} else if value < -1.0 {
		value = -1.0
	}
	if hold < 20*time.Millisecond {
		hold = 20 * time.Millisecond
	}
	logging.OSCDebug("/input/%s=%.2f hold=%s", name, value, hold)
	if err := c.Send("/input/"+name, value); err != nil {
		return err
	}
	time.Sleep(hold)
	return c.Send("/input/"+name, 0.0)
}

// Button taps a momentary input (1 then 0).
func (c *Client) Button(name string) error {
	logging.OSCDebug("/input/%s=1->0", name)
	if err := c.Send("/input/"+name, 1); err != nil {
		return err
	}
	time.Sleep(30 * time.Millisecond)
	return c.Send("/input/"+name, 0)
}

// ButtonState presses or releases a held input and tracks it so shutdown
// can release anything left down.
func (c *Client) ButtonState(name string, pressed bool) error {
	v := 0
	if pressed {
		v = 1
	}
	if err := c.Send("/input/"+name, v); err != nil {
		return err
	}
	c.mu.Lock()
	if pressed {
		c.held[name] = true
	} else {
		delete(c.held, name)
	}
	c.mu.Unlock()
	return nil
}

// Chat sends a line to the VRChat chatbox. maxRunes caps the message; the
// chatbox silently drops anything longer. addToHistory is always false to
// keep the in-game history clean.
func (c *Client) Chat(text string, maxRunes int) error {
	text = sanitizeChat(text, maxRunes)
	if text == "" {
		return nil
	}
	logging.OSC("chatbox send len=%d", len(text))
	// /chatbox/input [message, send, addToHistory]
	return c.Send("/chatbox/input", text, true, false)
}

// ReleaseHeld releases every button still marked pressed. Called on
// shutdown so a dropped key_down can't leave the avatar walking forever.
func (c *Client) ReleaseHeld() {
	c.mu.Lock()
	names := make([]string, 0, len(c.held))
	for name := range c.held {
		names = append(names, name)
	}
	c.mu.Unlock()
	for _, name := range names {
		if err := c.ButtonState(name, false); err != nil {
			logging.OSCDebug("release %s failed: %v", name, err)
		}
	}
}

// Close releases held buttons and closes the socket.
func (c *Client) Close() error {
	c.ReleaseHeld()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func sanitizeChat(text string, maxRunes int) string {
	out := make([]rune, 0, len(text))
	for _, r := range text {
		if r == '\n' || r == '\r' {
			r = ' '
		}
		out = append(out, r)
	}
	if maxRunes > 0 && len(out) > maxRunes {
		out = out[:maxRunes]
	}
	// Trim leading/trailing spaces introduced by newline squashing.
	start, end := 0, len(out)
	for start < end && out[start] == ' ' {
		start++
	}
	for end > start && out[end-1] == ' ' {
		end--
	}
	return string(out[start:end])
}
