package action

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionJSONSchema(t *testing.T) {
	var a Action
	require.NoError(t, json.Unmarshal([]byte(`{"type":"move","direction":"w","seconds":0.3}`), &a))
	assert.Equal(t, KindMove, a.Kind)
	assert.Equal(t, "w", a.Direction)

	data, err := json.Marshal(Action{Kind: KindLook, DX: 20, DY: -5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"look","dx":20,"dy":-5}`, string(data))
}

func TestHold(t *testing.T) {
	assert.Equal(t, 300*time.Millisecond, Action{Seconds: 0.3}.Hold())
	assert.Equal(t, time.Duration(0), Action{Seconds: -1}.Hold())
	assert.Equal(t, time.Duration(0), Action{}.Hold())
}

func TestActuatorMapping(t *testing.T) {
	assert.Equal(t, ActuatorMove, Action{Kind: KindMove}.Actuator())
	assert.Equal(t, ActuatorLook, Action{Kind: KindLook}.Actuator())
	assert.Equal(t, ActuatorLook, Action{Kind: KindMouseClick}.Actuator())
	assert.Equal(t, ActuatorJump, Action{Kind: KindJump}.Actuator())
	assert.Equal(t, ActuatorJump, Action{Kind: KindCrouch}.Actuator())
	assert.Equal(t, ActuatorJump, Action{Kind: KindProne}.Actuator())
	assert.Equal(t, ActuatorChat, Action{Kind: KindChat}.Actuator())
	assert.Equal(t, ActuatorWait, Action{Kind: KindWait}.Actuator())
}

func TestSignature(t *testing.T) {
	assert.Equal(t, "", Signature(nil))
	assert.Equal(t, "move:w", Signature([]Action{{Kind: KindMove, Direction: "w"}}))
	assert.Equal(t, "look:2:0|jump", Signature([]Action{
		{Kind: KindLook, DX: 23, DY: 4},
		{Kind: KindJump},
	}))

	// Look deltas bucket by tens so jitter-level differences match.
	a := Signature([]Action{{Kind: KindLook, DX: 21}})
	b := Signature([]Action{{Kind: KindLook, DX: 28}})
	c := Signature([]Action{{Kind: KindLook, DX: 35}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	// Only the first five actions count.
	long := make([]Action, 8)
	for i := range long {
		long[i] = Action{Kind: KindJump}
	}
	assert.Equal(t, "jump|jump|jump|jump|jump", Signature(long))
}
