// Package perception defines the observation contract consumed by the
// control loop. Screen/audio capture and vision/ASR description happen in
// external collaborators; this package only manages their snapshots.
package perception

import "time"

// Observation is an immutable snapshot of what the agent currently
// sees and hears.
type Observation struct {
	// Scene is the natural-language scene descriptor from the vision model.
	Scene string
	// Heard is transcribed nearby speech; empty when nothing was heard.
	Heard string
	// CapturedAt is when the snapshot was taken.
	CapturedAt time.Time
}

// IsZero reports whether the observation carries no content at all.
func (o Observation) IsZero() bool {
	return o.Scene == "" && o.Heard == "" && o.CapturedAt.IsZero()
}
